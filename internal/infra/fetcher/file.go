package fetcher

import (
	"context"
	"fmt"
	"os"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// ReadFile returns a fetch that reads the whole file as a string.
func ReadFile(path string) domain.FetchFunc {
	return func(ctx context.Context) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	}
}
