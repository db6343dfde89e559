package verify

import (
	"time"

	"github.com/nextlevelbuilder/numcheck/internal/cache"
)

// Result statuses.
const (
	StatusValid   = "valid"
	StatusInvalid = "invalid"
	StatusError   = cache.StatusError
)

// Result is the outcome for one input identifier.
// Empty strings and a nil Registered are rendered as null.
type Result struct {
	Input      string    `json:"input"`
	Canonical  string    `json:"canonical,omitempty"`
	Status     string    `json:"status"`
	Registered *bool     `json:"registered"`
	Carrier    string    `json:"carrier,omitempty"`
	Error      string    `json:"error,omitempty"`
	FromCache  bool      `json:"from_cache"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Update is one progress message of a run. The last message of a run has
// Done set and carries every result in input order.
type Update struct {
	RunID     string   `json:"run_id"`
	Completed int      `json:"completed"`
	Total     int      `json:"total"`
	Current   string   `json:"current,omitempty"`
	Result    *Result  `json:"result,omitempty"`
	Done      bool     `json:"done,omitempty"`
	Results   []Result `json:"results,omitempty"`
	Summary   *Summary `json:"summary,omitempty"`
}

// Summary counts results by outcome.
type Summary struct {
	Total         int `json:"total"`
	Valid         int `json:"valid"`
	Registered    int `json:"registered"`
	NotRegistered int `json:"not_registered"`
	Invalid       int `json:"invalid"`
	Errors        int `json:"errors"`
	FromCache     int `json:"from_cache"`
}

// Summarize counts results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusValid:
			s.Valid++
			if r.Registered != nil && *r.Registered {
				s.Registered++
			} else {
				s.NotRegistered++
			}
		case StatusInvalid:
			s.Invalid++
		case StatusError:
			s.Errors++
		}
		if r.FromCache {
			s.FromCache++
		}
	}
	return s
}

func invalidResult(input string, err error, now time.Time) Result {
	return Result{
		Input:     input,
		Status:    StatusInvalid,
		Error:     err.Error(),
		CheckedAt: now,
	}
}

func errorResult(input, canonical, carrier string, err error, now time.Time) Result {
	return Result{
		Input:     input,
		Canonical: canonical,
		Status:    StatusError,
		Carrier:   carrier,
		Error:     err.Error(),
		CheckedAt: now,
	}
}

func fromCached(input, canonical string, c cache.Result, hit bool) Result {
	registered := c.Registered
	return Result{
		Input:      input,
		Canonical:  canonical,
		Status:     c.Status,
		Registered: &registered,
		Carrier:    c.Carrier,
		FromCache:  hit,
		CheckedAt:  c.CheckedAt,
	}
}
