package feed

import (
	"fmt"
	"iter"

	"github.com/yangwenmai/threadauto/internal/model"
)

// Select returns the most recent candidate for which seen reports false.
// Equal timestamps, including missing ones, go to the first listed entry.
// ok is false when every candidate has been seen.
func Select(candidates iter.Seq[model.Candidate], seen func(id string) (bool, error)) (best model.Candidate, ok bool, err error) {
	for c := range candidates {
		dup, err := seen(c.ID)
		if err != nil {
			return model.Candidate{}, false, fmt.Errorf("check %s: %w", c.ID, err)
		}
		if dup {
			continue
		}
		if !ok || c.Published.After(best.Published) {
			best, ok = c, true
		}
	}
	return best, ok, nil
}
