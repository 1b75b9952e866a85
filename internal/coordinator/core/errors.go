package core

import "errors"

var (
	// Callback header validation errors.
	ErrCallbackMissing    = errors.New("callback header is missing")
	ErrCallbackNotAString = errors.New("callback header is not a valid string")
	ErrCallbackNotAURL    = errors.New("callback header is not a valid URL")

	// Storage errors.
	ErrCorruptQueueFile = errors.New("queue file is not a JSON array")
	ErrUnknownQueueMode = errors.New("unknown queue mode")
)
