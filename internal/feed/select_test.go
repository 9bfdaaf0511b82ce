package feed

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/threadauto/internal/model"
)

func seenSet(ids ...string) func(string) (bool, error) {
	return func(id string) (bool, error) {
		return slices.Contains(ids, id), nil
	}
}

func TestSelect(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		items  []model.Candidate
		seen   []string
		wantID string
		wantOK bool
	}{
		{
			name:   "most recent wins",
			items:  []model.Candidate{{ID: "a", Published: day(1)}, {ID: "b", Published: day(3)}, {ID: "c", Published: day(2)}},
			wantID: "b", wantOK: true,
		},
		{
			name:   "seen entries skipped",
			items:  []model.Candidate{{ID: "a", Published: day(1)}, {ID: "b", Published: day(3)}},
			seen:   []string{"b"},
			wantID: "a", wantOK: true,
		},
		{
			name:   "tie goes to first listed",
			items:  []model.Candidate{{ID: "a", Published: day(2)}, {ID: "b", Published: day(2)}},
			wantID: "a", wantOK: true,
		},
		{
			name:   "missing timestamps keep feed order",
			items:  []model.Candidate{{ID: "a"}, {ID: "b"}},
			wantID: "a", wantOK: true,
		},
		{
			name:   "all seen",
			items:  []model.Candidate{{ID: "a"}, {ID: "b"}},
			seen:   []string{"a", "b"},
			wantOK: false,
		},
		{
			name:   "empty feed",
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Select(slices.Values(tt.items), seenSet(tt.seen...))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, got.ID)
			}
		})
	}
}

func TestSelect_LookupError(t *testing.T) {
	boom := errors.New("db locked")
	_, ok, err := Select(slices.Values([]model.Candidate{{ID: "a"}}), func(string) (bool, error) {
		return false, boom
	})
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}
