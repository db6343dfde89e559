package methods

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nextlevelbuilder/numcheck/internal/gateway"
	"github.com/nextlevelbuilder/numcheck/internal/phone"
	"github.com/nextlevelbuilder/numcheck/internal/verify"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

// progressInterval throttles progress events for items that resolve without
// a network query (invalid input, cache hits), which can arrive in bursts.
const progressInterval = 100 * time.Millisecond

// NumberMethods handles numbers.normalize, numbers.check, numbers.result and
// numbers.runs.
type NumberMethods struct {
	engine *verify.Engine
}

func NewNumberMethods(engine *verify.Engine) *NumberMethods {
	return &NumberMethods{engine: engine}
}

func (m *NumberMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodNumbersNormalize, m.handleNormalize)
	router.Register(protocol.MethodNumbersCheck, m.handleCheck)
	router.Register(protocol.MethodNumbersResult, m.handleResult)
	router.Register(protocol.MethodNumbersRuns, m.handleRuns)
}

// NormalizedNumber is one entry of a numbers.normalize response.
type NormalizedNumber struct {
	Input     string `json:"input"`
	Canonical string `json:"canonical,omitempty"`
	Carrier   string `json:"carrier,omitempty"`
	Region    string `json:"region,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (m *NumberMethods) handleNormalize(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params protocol.NumbersParams
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if len(params.Numbers) == 0 {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "numbers is required"))
		return
	}

	out := make([]NormalizedNumber, len(params.Numbers))
	for i, raw := range params.Numbers {
		out[i] = NormalizedNumber{Input: raw}
		n, err := phone.Normalize(raw)
		if err != nil {
			out[i].Error = err.Error()
			continue
		}
		out[i].Canonical, out[i].Carrier, out[i].Region = n.Canonical, n.Carrier, n.Region
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"numbers": out}))
}

// handleCheck starts a background run and answers with its id. Progress
// follows as numbers.progress events and a final numbers.done.
func (m *NumberMethods) handleCheck(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params protocol.NumbersParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "invalid params: "+err.Error()))
			return
		}
	}
	userID := client.ResolveUser(params.UserID)

	if ok, retryAfter := client.Server().CheckLimiter().Allow(userID); !ok {
		client.SendResponse(protocol.NewRetryableError(req.ID, protocol.ErrResourceExhausted,
			"too many checks, slow down", int(retryAfter.Milliseconds())))
		return
	}

	runID, updates, err := m.engine.Stream(client.Server().RunContext(), userID, params.Numbers)
	if err != nil {
		client.SendErr(req.ID, err)
		return
	}

	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"run_id": runID,
		"total":  len(params.Numbers),
	}))
	go forwardProgress(client, updates)
}

func forwardProgress(client *gateway.Client, updates <-chan verify.Update) {
	var last time.Time
	for u := range updates {
		if u.Done {
			client.SendEvent(*protocol.NewEvent(protocol.EventNumbersDone, map[string]any{
				"run_id":  u.RunID,
				"total":   u.Total,
				"summary": u.Summary,
				"results": u.Results,
			}))
			continue
		}
		queried := u.Result != nil && u.Result.Status != verify.StatusInvalid && !u.Result.FromCache
		if !queried && u.Completed < u.Total && time.Since(last) < progressInterval {
			continue
		}
		last = time.Now()
		client.SendEvent(*protocol.NewEvent(protocol.EventNumbersProgress, u))
	}
}

func (m *NumberMethods) handleResult(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params protocol.ResultParams
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.RunID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "run_id is required"))
		return
	}

	run, err := m.engine.Run(params.RunID)
	if err != nil {
		client.SendErr(req.ID, err)
		return
	}

	if strings.EqualFold(params.Format, "csv") {
		var sb strings.Builder
		if err := run.WriteCSV(&sb); err != nil {
			client.SendErr(req.ID, err)
			return
		}
		client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
			"run_id": run.ID,
			"csv":    sb.String(),
		}))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, run))
}

// RunSummary is one entry of a numbers.runs response. Results are left out;
// numbers.result fetches them.
type RunSummary struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Total      int            `json:"total"`
	Summary    verify.Summary `json:"summary"`
}

// handleRuns lists the user's retained runs, most recent first.
func (m *NumberMethods) handleRuns(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	runs := m.engine.Runs(userParam(client, req))
	out := make([]RunSummary, len(runs))
	for i, r := range runs {
		out[i] = RunSummary{
			ID:         r.ID,
			UserID:     r.UserID,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
			Total:      len(r.Results),
			Summary:    r.Summary,
		}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"runs": out}))
}
