package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"toolchat/config"
	"toolchat/model"
)

const (
	DefaultMaxParallelTools = 4
	DefaultToolTimeout      = 60 * time.Second
)

// ToolExecutor runs one tool call. An error means the call could not be
// made at all; a tool that ran and failed returns a result with Success
// false.
type ToolExecutor interface {
	Execute(ctx context.Context, req model.ToolExecutionRequest) (model.ToolExecutionResult, error)
}

// DispatchStats summarizes every call the dispatcher has run.
type DispatchStats struct {
	Total           int
	Succeeded       int
	Failed          int
	AverageDuration time.Duration
}

// Dispatcher runs tool calls with bounded parallelism. Every request gets
// exactly one result, in request order, whatever happens to its siblings.
type Dispatcher struct {
	executor    ToolExecutor
	maxParallel int
	timeout     time.Duration

	mu            sync.Mutex
	stats         DispatchStats
	totalDuration time.Duration
}

// NewDispatcher bounds each batch to maxParallel concurrent calls (1 runs
// serially) and each call to timeout. Zero values select the defaults; a
// negative timeout disables it.
func NewDispatcher(executor ToolExecutor, maxParallel int, timeout time.Duration) *Dispatcher {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelTools
	}
	if timeout == 0 {
		timeout = DefaultToolTimeout
	}
	return &Dispatcher{
		executor:    executor,
		maxParallel: maxParallel,
		timeout:     timeout,
	}
}

// ExecuteMany runs every request and waits for all of them.
func (d *Dispatcher) ExecuteMany(ctx context.Context, reqs []model.ToolExecutionRequest) []model.ToolExecutionResult {
	results := make([]model.ToolExecutionResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	if d.executor == nil {
		for i, req := range reqs {
			results[i] = model.FailedResult(req, "tool executor unavailable", 0)
		}
		d.record(results)
		return results
	}

	// A plain Group: one failed call must not cancel the others
	var g errgroup.Group
	g.SetLimit(d.maxParallel)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = d.run(ctx, req)
			return nil
		})
	}
	g.Wait()

	d.record(results)

	if config.DebugLog != nil {
		failed := 0
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}
		config.DebugLog.Printf("[Chat] Dispatched %d tool calls (limit %d), %d failed", len(reqs), d.maxParallel, failed)
	}

	return results
}

// ExecuteOne runs a single request.
func (d *Dispatcher) ExecuteOne(ctx context.Context, req model.ToolExecutionRequest) model.ToolExecutionResult {
	return d.ExecuteMany(ctx, []model.ToolExecutionRequest{req})[0]
}

// Stats returns the accumulated execution statistics.
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) run(ctx context.Context, req model.ToolExecutionRequest) (result model.ToolExecutionResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = model.FailedResult(req, fmt.Sprintf("tool panicked: %v", r), time.Since(start))
		}
	}()

	if err := ctx.Err(); err != nil {
		return model.FailedResult(req, fmt.Sprintf("cancelled: %v", err), 0)
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	res, err := d.executor.Execute(callCtx, req)
	took := time.Since(start)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return model.FailedResult(req, fmt.Sprintf("timed out after %v", d.timeout), took)
		}
		return model.FailedResult(req, err.Error(), took)
	}

	res.RequestID = req.RequestID
	if res.ToolName == "" {
		res.ToolName = req.ToolName
	}
	if res.Duration == 0 {
		res.Duration = took
	}
	if !res.Success && res.Error == "" {
		res.Error = "tool reported an error"
	}
	return res
}

func (d *Dispatcher) record(results []model.ToolExecutionResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range results {
		d.stats.Total++
		if r.Success {
			d.stats.Succeeded++
		} else {
			d.stats.Failed++
		}
		d.totalDuration += r.Duration
	}
	if d.stats.Total > 0 {
		d.stats.AverageDuration = d.totalDuration / time.Duration(d.stats.Total)
	}
}

// ResultError returns the failure of r as a *ToolExecutionError, or nil.
func ResultError(r model.ToolExecutionResult) error {
	if r.Success {
		return nil
	}
	return &ToolExecutionError{
		ToolName:  r.ToolName,
		RequestID: r.RequestID,
		Err:       errors.New(r.Error),
	}
}
