// Package verify checks batches of phone numbers for registration on the
// messaging network through a user's ready session.
//
// Each identifier is normalized, then looked up in the shared result cache.
// Misses are queried in fixed-size concurrent batches with a cooldown between
// batches. Every query of a user additionally passes a per-user pacing gate,
// so concurrent checks of the same user share one query budget.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/numcheck/internal/cache"
	"github.com/nextlevelbuilder/numcheck/internal/phone"
	"github.com/nextlevelbuilder/numcheck/internal/session"
)

// Settings bounds a check.
type Settings struct {
	MaxItems      int
	BatchSize     int
	QueryInterval time.Duration // minimum gap between two queries of one user
	BatchCooldown time.Duration
	QueryTimeout  time.Duration
	HistorySize   int
}

// DefaultSettings returns the production limits.
func DefaultSettings() Settings {
	return Settings{
		MaxItems:      5000,
		BatchSize:     5,
		QueryInterval: 2 * time.Second,
		BatchCooldown: time.Second,
		QueryTimeout:  20 * time.Second,
		HistorySize:   DefaultHistorySize,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxItems <= 0 {
		s.MaxItems = d.MaxItems
	}
	if s.BatchSize <= 0 {
		s.BatchSize = d.BatchSize
	}
	if s.QueryTimeout <= 0 {
		s.QueryTimeout = d.QueryTimeout
	}
	if s.HistorySize <= 0 {
		s.HistorySize = d.HistorySize
	}
	return s
}

// SessionSource hands out the protocol client of a ready session.
type SessionSource interface {
	ReadyClient(userID string) (session.ProtocolClient, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures an Engine.
type Option func(*Engine)

// WithSleep replaces the cooldown sleep between batches.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs verification batches. Safe for concurrent use.
type Engine struct {
	sessions SessionSource
	cache    *cache.Cache
	flight   singleflight.Group
	history  *history
	sleep    SleepFunc
	now      func() time.Time

	mu       sync.RWMutex
	settings Settings
	gates    map[string]*rate.Limiter // userID → pacing gate
}

// NewEngine creates an engine over the given sessions and shared cache.
func NewEngine(sessions SessionSource, c *cache.Cache, s Settings, opts ...Option) *Engine {
	s = s.withDefaults()
	e := &Engine{
		sessions: sessions,
		cache:    c,
		history:  newHistory(s.HistorySize),
		sleep:    sleepCtx,
		now:      time.Now,
		settings: s,
		gates:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings returns the current limits.
func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// UpdateSettings applies new limits to subsequent checks. Existing pacing
// gates switch to the new interval immediately.
func (e *Engine) UpdateSettings(s Settings) {
	s = s.withDefaults()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s
	for _, g := range e.gates {
		g.SetLimit(limitFor(s.QueryInterval))
	}
	e.history.resize(s.HistorySize)
	slog.Info("verify.settings_updated",
		"max_items", s.MaxItems, "batch_size", s.BatchSize,
		"query_interval", s.QueryInterval, "batch_cooldown", s.BatchCooldown)
}

// Check verifies identifiers for userID and returns one result per input, in
// input order. Progress is sent to updates in completion order, followed by a
// final Update with Done set. If updates is non-nil it is closed when Check
// returns, and the caller must keep receiving until then. Precondition
// failures return ErrInvalidInput, ErrTooManyItems or
// session.ErrSessionNotReady before any query is made.
func (e *Engine) Check(ctx context.Context, userID string, identifiers []string, updates chan<- Update) ([]Result, error) {
	if updates != nil {
		defer close(updates)
	}
	client, st, err := e.prepare(userID, identifiers)
	if err != nil {
		return nil, err
	}
	run := e.execute(ctx, uuid.NewString(), userID, identifiers, client, st, updates)
	return run.Results, nil
}

// Stream validates the preconditions synchronously, then runs the check in
// the background. The returned channel receives the run's updates and is
// closed after the final one.
func (e *Engine) Stream(ctx context.Context, userID string, identifiers []string) (string, <-chan Update, error) {
	client, st, err := e.prepare(userID, identifiers)
	if err != nil {
		return "", nil, err
	}
	runID := uuid.NewString()
	ch := make(chan Update, st.BatchSize*2)
	go func() {
		defer close(ch)
		e.execute(ctx, runID, userID, identifiers, client, st, ch)
	}()
	return runID, ch, nil
}

// Run returns a retained finished run.
func (e *Engine) Run(runID string) (*Run, error) {
	r, ok := e.history.get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, nil
}

// Runs returns userID's retained runs, most recent first.
func (e *Engine) Runs(userID string) []*Run {
	return e.history.forUser(userID)
}

// CacheStats reports the shared cache.
func (e *Engine) CacheStats() cache.Stats { return e.cache.Stats() }

// ClearCache empties the shared cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
	slog.Info("verify.cache_cleared")
}

func (e *Engine) prepare(userID string, identifiers []string) (session.ProtocolClient, Settings, error) {
	st := e.Settings()
	if len(identifiers) == 0 {
		return nil, st, ErrInvalidInput
	}
	if len(identifiers) > st.MaxItems {
		return nil, st, fmt.Errorf("%w: %d exceeds the limit of %d", ErrTooManyItems, len(identifiers), st.MaxItems)
	}
	client, err := e.sessions.ReadyClient(userID)
	if err != nil {
		return nil, st, err
	}
	return client, st, nil
}

// pending is an identifier that missed the cache.
type pending struct {
	index int
	input string
	num   phone.Number
}

func (e *Engine) execute(ctx context.Context, runID, userID string, identifiers []string, client session.ProtocolClient, st Settings, updates chan<- Update) *Run {
	started := e.now()
	results := make([]Result, len(identifiers))
	prog := &progress{ctx: ctx, runID: runID, total: len(identifiers), out: updates}

	var misses []pending
	for i, raw := range identifiers {
		num, err := phone.Normalize(raw)
		if err != nil {
			results[i] = invalidResult(raw, err, e.now())
			prog.report(raw, results[i])
			continue
		}
		if hit, ok := e.cache.Get(num.Canonical); ok {
			results[i] = fromCached(raw, num.Canonical, hit, true)
			prog.report(raw, results[i])
			continue
		}
		misses = append(misses, pending{index: i, input: raw, num: num})
	}

	slog.Info("verify.run_started", "run", runID, "user", userID,
		"total", len(identifiers), "queries", len(misses))

	gate := e.gate(userID)
	for start := 0; start < len(misses); start += st.BatchSize {
		if start > 0 && st.BatchCooldown > 0 {
			_ = e.sleep(ctx, st.BatchCooldown) // a cancelled ctx fails the queries below
		}
		end := min(start+st.BatchSize, len(misses))

		var wg sync.WaitGroup
		for _, p := range misses[start:end] {
			wg.Go(func() {
				results[p.index] = e.query(ctx, userID, client, gate, st.QueryTimeout, p)
				prog.report(p.input, results[p.index])
			})
		}
		wg.Wait()
	}

	run := &Run{
		ID:         runID,
		UserID:     userID,
		StartedAt:  started,
		FinishedAt: e.now(),
		Results:    results,
		Summary:    Summarize(results),
	}
	e.history.add(run)

	slog.Info("verify.run_done", "run", runID, "user", userID,
		"valid", run.Summary.Valid, "registered", run.Summary.Registered,
		"invalid", run.Summary.Invalid, "errors", run.Summary.Errors,
		"from_cache", run.Summary.FromCache, "duration", run.FinishedAt.Sub(started))

	summary := run.Summary
	prog.finish(Update{RunID: runID, Completed: prog.count(), Total: len(identifiers), Done: true, Results: results, Summary: &summary})
	return run
}

// query resolves one cache miss. Duplicate numbers of the same user share a
// single network query; whoever did not issue it reports FromCache.
func (e *Engine) query(ctx context.Context, userID string, client session.ProtocolClient, gate *rate.Limiter, timeout time.Duration, p pending) Result {
	canon := p.num.Canonical
	if err := gate.Wait(ctx); err != nil {
		return errorResult(p.input, canon, p.num.Carrier, err, e.now())
	}

	// Another query may have filled the cache while we waited.
	if hit, ok := e.cache.Get(canon); ok {
		return fromCached(p.input, canon, hit, true)
	}

	issued := false
	v, err, _ := e.flight.Do(userID+"|"+canon, func() (any, error) {
		issued = true
		qctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		registered, err := client.QueryRegistration(qctx, canon)
		if err != nil {
			return nil, err
		}
		r := cache.Result{
			Status:     StatusValid,
			Registered: registered,
			Carrier:    p.num.Carrier,
			CheckedAt:  e.now(),
		}
		e.cache.Put(canon, r)
		return r, nil
	})
	if err != nil {
		slog.Warn("verify.query_failed", "user", userID, "number", canon, "error", err)
		return errorResult(p.input, canon, p.num.Carrier, err, e.now())
	}
	return fromCached(p.input, canon, v.(cache.Result), !issued)
}

func (e *Engine) gate(userID string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.gates[userID]
	if !ok {
		g = rate.NewLimiter(limitFor(e.settings.QueryInterval), 1)
		e.gates[userID] = g
	}
	return g
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// progress serializes progress messages so Completed grows by one per message.
type progress struct {
	ctx       context.Context
	runID     string
	total     int
	out       chan<- Update
	mu        sync.Mutex
	completed int
}

func (p *progress) report(input string, r Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	p.send(Update{RunID: p.runID, Completed: p.completed, Total: p.total, Current: input, Result: &r})
}

func (p *progress) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

func (p *progress) finish(u Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.out != nil {
		// The final message is always delivered, even after cancellation.
		p.out <- u
	}
}

func (p *progress) send(u Update) {
	if p.out == nil {
		return
	}
	select {
	case p.out <- u:
	case <-p.ctx.Done():
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
