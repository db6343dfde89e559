package verify

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultHistorySize is the number of finished runs kept for re-fetching.
const DefaultHistorySize = 50

// Run is a finished check, kept in the run history.
type Run struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
	Summary    Summary   `json:"summary"`
}

var csvHeader = []string{"input", "canonical", "status", "registered", "carrier", "error", "from_cache", "checked_at"}

// WriteCSV writes the run's results, one row per input, in input order.
func (r *Run) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, res := range r.Results {
		registered := ""
		if res.Registered != nil {
			registered = strconv.FormatBool(*res.Registered)
		}
		row := []string{
			res.Input,
			res.Canonical,
			res.Status,
			registered,
			res.Carrier,
			res.Error,
			strconv.FormatBool(res.FromCache),
			res.CheckedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// history is a bounded LRU of finished runs.
type history struct {
	runs *lru.Cache[string, *Run]
}

func newHistory(size int) *history {
	if size <= 0 {
		size = DefaultHistorySize
	}
	c, _ := lru.New[string, *Run](size) // only fails for size <= 0
	return &history{runs: c}
}

func (h *history) add(r *Run) { h.runs.Add(r.ID, r) }

func (h *history) get(id string) (*Run, bool) { return h.runs.Get(id) }

func (h *history) resize(size int) {
	if size > 0 {
		h.runs.Resize(size)
	}
}

// forUser returns userID's retained runs, most recent first.
func (h *history) forUser(userID string) []*Run {
	keys := h.runs.Keys() // oldest first
	var out []*Run
	for i := len(keys) - 1; i >= 0; i-- {
		if r, ok := h.runs.Peek(keys[i]); ok && r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}
