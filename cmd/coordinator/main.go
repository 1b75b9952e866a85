package main

import (
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/cli"
)

func main() {
	cli.Execute()
}
