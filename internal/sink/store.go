package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/store"
)

// DefaultBatchSize is the number of records buffered before an upsert.
const DefaultBatchSize = 500

// Store buffers records and upserts them in batches keyed by
// (source_state, provider_url).
type Store struct {
	st        store.Store
	batchSize int
	pending   []*model.ProviderRecord
	changed   int
}

// NewStore creates a store sink. A batchSize <= 0 uses DefaultBatchSize.
func NewStore(st store.Store, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Store{st: st, batchSize: batchSize}
}

func (s *Store) Write(ctx context.Context, rec *model.ProviderRecord) error {
	s.pending = append(s.pending, rec)
	if len(s.pending) >= s.batchSize {
		return s.flush(ctx)
	}
	return nil
}

// Close upserts any buffered records. The store itself stays open.
func (s *Store) Close(ctx context.Context) error {
	return s.flush(ctx)
}

// Changed returns how many records were inserted or changed so far.
func (s *Store) Changed() int {
	return s.changed
}

func (s *Store) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	n, err := s.st.UpsertProviders(ctx, s.pending)
	if err != nil {
		return err
	}
	zap.L().Debug("sink: upserted providers",
		zap.Int("batch", len(s.pending)),
		zap.Int("changed", n),
	)
	s.changed += n
	s.pending = s.pending[:0]
	return nil
}
