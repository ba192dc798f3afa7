package config

import (
	"time"

	redisclient "github.com/vietddude/batchfetch/internal/infra/redis"
	"github.com/vietddude/batchfetch/internal/infra/notify"
	"github.com/vietddude/batchfetch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Batch    BatchConfig        `yaml:"batch"`
	Targets  []TargetConfig     `yaml:"targets"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Webhook  notify.Config      `yaml:"webhook"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// BatchConfig controls how targets are fetched.
type BatchConfig struct {
	Policy         string           `yaml:"policy"`          // sequential, parallel_fail_fast, parallel_best_effort
	MaxConcurrency int              `yaml:"max_concurrency"` // 0 = unbounded
	Interval       time.Duration    `yaml:"interval"`        // serve mode only; 0 = run once
	Timeout        time.Duration    `yaml:"timeout"`         // per fetch attempt; 0 = none
	StartDelay     StartDelayConfig `yaml:"start_delay"`
	Retry          RetryConfig      `yaml:"retry"`
	Retention      time.Duration    `yaml:"retention"` // stored batches older than this are pruned; 0 = keep forever
}

// StartDelayConfig adds a random pause before every fetch attempt.
type StartDelayConfig struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// RetryConfig mirrors orchestrator.RetryPolicy. Zero fields take the
// orchestrator defaults.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Jitter      time.Duration `yaml:"jitter"`
}

// TargetType selects the fetcher for a target.
type TargetType string

const (
	TargetFile TargetType = "file"
	TargetHTTP TargetType = "http"
	TargetGRPC TargetType = "grpc"
)

// TargetConfig describes one resource to fetch.
type TargetConfig struct {
	ID   string     `yaml:"id"`
	Type TargetType `yaml:"type"`

	// file
	Path string `yaml:"path"`

	// http
	URL       string            `yaml:"url"`
	Method    string            `yaml:"method"`
	Headers   map[string]string `yaml:"headers"`
	Body      string            `yaml:"body"`
	RPCMethod string            `yaml:"rpc_method"` // JSON-RPC 2.0 method; empty = plain REST
	Params    []any             `yaml:"params"`

	// grpc
	Address string `yaml:"address"`
	Service string `yaml:"service"` // health service name; empty = overall server health

	// Repeat adds the same target this many extra times to the batch.
	Repeat int `yaml:"repeat"`
}
