package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/batchfetch/internal/core/domain"
	"github.com/vietddude/batchfetch/internal/orchestrator"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Batch.Policy == "" {
		cfg.Batch.Policy = string(domain.ParallelBestEffort)
	}
	retryDefaults := orchestrator.DefaultRetryPolicy()
	if cfg.Batch.Retry.MaxAttempts == 0 {
		cfg.Batch.Retry.MaxAttempts = retryDefaults.MaxAttempts
	}
	if cfg.Batch.Retry.BaseDelay == 0 {
		cfg.Batch.Retry.BaseDelay = retryDefaults.BaseDelay
	}
	if cfg.Batch.Retry.Jitter == 0 {
		cfg.Batch.Retry.Jitter = retryDefaults.Jitter
	}
	if cfg.Webhook.URL != "" && cfg.Webhook.Timeout == 0 {
		cfg.Webhook.Timeout = 5 * time.Second
	}
	for i := range cfg.Targets {
		for j, p := range cfg.Targets[i].Params {
			cfg.Targets[i].Params[j] = normalize(p)
		}
		if cfg.Targets[i].Type == TargetHTTP && cfg.Targets[i].Method == "" {
			cfg.Targets[i].Method = "GET"
			if cfg.Targets[i].RPCMethod != "" {
				cfg.Targets[i].Method = "POST"
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every configuration problem at once.
func (c *AppConfig) Validate() error {
	var errs []error
	if _, err := domain.ParsePolicy(c.Batch.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.Batch.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1"))
	}
	if c.Batch.StartDelay.Max < c.Batch.StartDelay.Min {
		errs = append(errs, fmt.Errorf("start_delay.max (%v) is below start_delay.min (%v)",
			c.Batch.StartDelay.Max, c.Batch.StartDelay.Min))
	}
	if c.Batch.Retention < 0 {
		errs = append(errs, fmt.Errorf("batch.retention must not be negative"))
	}
	for i, t := range c.Targets {
		if t.ID == "" {
			errs = append(errs, fmt.Errorf("targets[%d]: missing id", i))
		}
		switch t.Type {
		case TargetFile:
			if t.Path == "" {
				errs = append(errs, fmt.Errorf("targets[%d] %q: file target needs a path", i, t.ID))
			}
		case TargetHTTP:
			if t.URL == "" {
				errs = append(errs, fmt.Errorf("targets[%d] %q: http target needs a url", i, t.ID))
			}
		case TargetGRPC:
			if t.Address == "" {
				errs = append(errs, fmt.Errorf("targets[%d] %q: grpc target needs an address", i, t.ID))
			}
		default:
			errs = append(errs, fmt.Errorf("targets[%d] %q: unknown type %q", i, t.ID, t.Type))
		}
		if t.Repeat < 0 {
			errs = append(errs, fmt.Errorf("targets[%d] %q: negative repeat", i, t.ID))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// normalize converts the map[interface{}]interface{} values produced by
// yaml.v2 into map[string]any so they can be JSON encoded.
func normalize(v any) any {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case []interface{}:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	default:
		return v
	}
}
