package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/hadley-cell/internal/domain"
)

// MultiLoader fans a batch out to several loaders in order. The first
// failure stops the fan-out so the batch is retried and left uncommitted.
type MultiLoader []BatchLoader

func (m MultiLoader) LoadBatch(ctx context.Context, results []domain.HadleyResult) error {
	for i, l := range m {
		if err := l.LoadBatch(ctx, results); err != nil {
			return fmt.Errorf("loader %d: %w", i, err)
		}
	}
	return nil
}
