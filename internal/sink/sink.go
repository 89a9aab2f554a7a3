// Package sink writes emitted provider records downstream: CSV feeds,
// JSON Lines, and the provider store. Sinks are not safe for concurrent
// use; the ingest engine serializes writes.
package sink

import (
	"context"
	"errors"

	"github.com/sells-group/provider-cli/internal/model"
)

// Sink receives validated provider records.
type Sink interface {
	Write(ctx context.Context, rec *model.ProviderRecord) error
	// Close flushes buffered records and releases the sink.
	Close(ctx context.Context) error
}

// Multi fans each record out to every sink in order.
type Multi []Sink

// Write writes rec to every sink, stopping at the first error.
func (m Multi) Write(ctx context.Context, rec *model.ProviderRecord) error {
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record. Used for dry runs.
type Discard struct{}

func (Discard) Write(context.Context, *model.ProviderRecord) error { return nil }
func (Discard) Close(context.Context) error                         { return nil }
