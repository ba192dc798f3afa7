package control

import (
	"fmt"
	"io"

	"github.com/vietddude/batchfetch/internal/core/config"
	"github.com/vietddude/batchfetch/internal/core/domain"
	"github.com/vietddude/batchfetch/internal/infra/fetcher"
	"github.com/vietddude/batchfetch/internal/orchestrator"
)

// targetBuilder turns configured targets into handles, sharing clients between targets.
type targetBuilder struct {
	batch config.BatchConfig
	rand  orchestrator.RandSource

	http    *fetcher.HTTPFetcher
	grpc    map[string]*fetcher.GRPCFetcher
	closers []io.Closer
}

func newTargetBuilder(batch config.BatchConfig, rnd orchestrator.RandSource) *targetBuilder {
	return &targetBuilder{
		batch: batch,
		rand:  rnd,
		grpc:  make(map[string]*fetcher.GRPCFetcher),
	}
}

// build returns one handle per target plus Repeat duplicates, in config order.
func (b *targetBuilder) build(targets []config.TargetConfig) ([]domain.Handle, error) {
	var handles []domain.Handle
	for _, t := range targets {
		fn, err := b.fetchFunc(t)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.ID, err)
		}
		fn = fetcher.WithTimeout(fn, b.batch.Timeout)
		fn = fetcher.WithStartDelay(fn, b.batch.StartDelay.Min, b.batch.StartDelay.Max, b.rand)

		for i := 0; i <= t.Repeat; i++ {
			handles = append(handles, domain.NewHandle(t.ID, fn))
		}
	}
	return handles, nil
}

func (b *targetBuilder) fetchFunc(t config.TargetConfig) (domain.FetchFunc, error) {
	switch t.Type {
	case config.TargetFile:
		return fetcher.ReadFile(t.Path), nil
	case config.TargetHTTP:
		if b.http == nil {
			// Per-request limits come from WithTimeout.
			b.http = fetcher.NewHTTPFetcher(0)
			b.closers = append(b.closers, b.http)
		}
		return b.http.Func(fetcher.Request{
			URL:       t.URL,
			Method:    t.Method,
			Headers:   t.Headers,
			Body:      t.Body,
			RPCMethod: t.RPCMethod,
			Params:    t.Params,
		}), nil
	case config.TargetGRPC:
		g, ok := b.grpc[t.Address]
		if !ok {
			var err error
			g, err = fetcher.NewGRPCFetcher(t.Address)
			if err != nil {
				return nil, err
			}
			b.grpc[t.Address] = g
			b.closers = append(b.closers, g)
		}
		return g.Func(t.Service), nil
	default:
		return nil, fmt.Errorf("unknown target type %q", t.Type)
	}
}

func (b *targetBuilder) close() {
	for _, c := range b.closers {
		_ = c.Close()
	}
}

// retryPolicy converts the configured retry settings.
func retryPolicy(cfg config.RetryConfig, rnd orchestrator.RandSource) orchestrator.RetryPolicy {
	return orchestrator.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Jitter:      cfg.Jitter,
		Rand:        rnd,
	}
}

