package services

import (
	"context"
	"errors"
	"fmt"
)

// Errors returned by the corpus and similarity services. Callers match them
// with errors.Is; the underlying cause stays in the chain.
var (
	ErrNotFound           = errors.New("ticket not found")
	ErrCorpusUnavailable  = errors.New("corpus unavailable")
	ErrEmbeddingFailed    = errors.New("embedding failed")
	ErrTimeout            = errors.New("request timed out")
	ErrInvalidQuery       = errors.New("query must not be empty")
	ErrInvalidTicketID    = errors.New("ticket id must not be empty")
	ErrSourceUnavailable  = errors.New("system of record unavailable")
	ErrIndexUnavailable   = errors.New("vector index unavailable")
	ErrIndexNotConfigured = errors.New("no external vector index configured")
)

// wrap tags err with kind, unless the operation ran out of time, in which
// case it becomes ErrTimeout.
func wrap(kind error, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}
