package store

import (
	"context"
	"errors"
	"time"

	"github.com/yangwenmai/threadauto/internal/model"
)

// ErrClaimed is returned by Claim when another run holds a live claim on the article.
var ErrClaimed = errors.New("article claimed by another run")

// LedgerReader provides exact-match lookups and history listing.
type LedgerReader interface {
	Has(ctx context.Context, articleID string) (bool, error)
	List(ctx context.Context, limit int) ([]model.PublicationRecord, error)
	Count(ctx context.Context) (int, error)
}

// LedgerWriter appends publication records. There is no update or delete.
type LedgerWriter interface {
	Record(ctx context.Context, rec model.PublicationRecord) error
}

// Claimer provides per-article mutual exclusion between overlapping runs.
type Claimer interface {
	Claim(ctx context.Context, articleID string, ttl time.Duration) (release func(), err error)
}

// Ledger combines all state operations used by the pipeline.
type Ledger interface {
	LedgerReader
	LedgerWriter
	Claimer
}
