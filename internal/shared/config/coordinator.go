package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CoordinatorConfig contains all configuration for the dispatch coordinator.
type CoordinatorConfig struct {
	REST     RESTConfig     `mapstructure:"rest"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Callback CallbackConfig `mapstructure:"callback"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// RESTConfig contains REST API server configuration.
type RESTConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	PublicDir    string        `mapstructure:"public_dir"`
}

// Addr returns the listen address for the REST server.
func (c RESTConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GRPCConfig contains gRPC health server configuration.
type GRPCConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Addr             string        `mapstructure:"addr"`
	EnableReflection bool          `mapstructure:"enable_reflection"`
	KeepaliveMinTime time.Duration `mapstructure:"keepalive_min_time"`
}

// QueueConfig selects and configures the job and worker queue backends.
// JobMode and WorkerMode fall back to Mode when empty.
type QueueConfig struct {
	Mode       string       `mapstructure:"mode"`
	JobMode    string       `mapstructure:"job_mode"`
	WorkerMode string       `mapstructure:"worker_mode"`
	JobFile    string       `mapstructure:"job_file"`
	WorkerFile string       `mapstructure:"worker_file"`
	Redis      RedisConfig  `mapstructure:"redis"`
	Sqlite     SqliteConfig `mapstructure:"sqlite"`
}

func (c QueueConfig) EffectiveJobMode() string {
	if c.JobMode != "" {
		return c.JobMode
	}
	return c.Mode
}

func (c QueueConfig) EffectiveWorkerMode() string {
	if c.WorkerMode != "" {
		return c.WorkerMode
	}
	return c.Mode
}

// RedisConfig holds the connection used by Redis-backed queues.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SqliteConfig holds the database file used by Sqlite-backed queues.
type SqliteConfig struct {
	Path string `mapstructure:"path"`
}

// CallbackConfig contains worker callback delivery configuration.
type CallbackConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// StatsConfig contains the queue stats reporter schedule.
type StatsConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"port":              "rest.port",
	"mode":              "queue.mode",
	"job-queue-mode":    "queue.job_mode",
	"worker-queue-mode": "queue.worker_mode",
}

// LoadCoordinator loads the coordinator configuration from the given path.
// If configPath is empty, it looks for coordinator.yaml in the config/ directory.
// Environment variables with JOBDISPATCH_ prefix override config file values,
// and flags that were explicitly set override both.
func LoadCoordinator(configPath string, flags *pflag.FlagSet) (*CoordinatorConfig, error) {
	v := viper.New()

	v.SetDefault("rest.port", 2567)
	v.SetDefault("rest.read_timeout", 15*time.Second)
	v.SetDefault("rest.write_timeout", 15*time.Second)
	v.SetDefault("rest.idle_timeout", 60*time.Second)
	v.SetDefault("rest.public_dir", "public")
	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("grpc.enable_reflection", true)
	v.SetDefault("grpc.keepalive_min_time", 30*time.Second)
	v.SetDefault("queue.mode", "CachedJsonFile")
	v.SetDefault("queue.job_mode", "")
	v.SetDefault("queue.worker_mode", "")
	v.SetDefault("queue.job_file", "jobs.json")
	v.SetDefault("queue.worker_file", "workers.json")
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("queue.redis.password", "")
	v.SetDefault("queue.redis.db", 0)
	v.SetDefault("queue.redis.key_prefix", "jobdispatch")
	v.SetDefault("queue.sqlite.path", "queues.db")
	v.SetDefault("callback.timeout", 10*time.Second)
	v.SetDefault("stats.schedule", "@every 1m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "job-dispatch-service")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("coordinator")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("JOBDISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
	}

	var cfg CoordinatorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
