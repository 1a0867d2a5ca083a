package s2s

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/voicebridge/pkg/queue"
	"github.com/haivivi/voicebridge/pkg/s2s/tool"
)

// toolErrorText is the payload sent back to the model when a tool execution
// fails for any reason other than bad arguments.
const toolErrorText = "An error occurred while attempting to retrieve information related to the toolUse event."

// toolInvalidArgsText is the payload for argument payloads that could not be
// decoded.
const toolInvalidArgsText = "invalid arguments"

// supervisor runs the tool dispatch loop: claim the next announced request
// from the gate, start an independent execution, immediately re-arm the
// claim. Executions pipeline; a slow tool never delays dispatch of the next
// one. Results land on the results queue, which the session consumes as a
// merge source.
type supervisor struct {
	registry *tool.Registry
	gate     *toolGate
	results  *queue.Queue[*ToolResult]
	log      *slog.Logger

	wg       sync.WaitGroup
	inflight atomic.Int32
}

func newSupervisor(registry *tool.Registry, gate *toolGate, results *queue.Queue[*ToolResult], log *slog.Logger) *supervisor {
	return &supervisor{
		registry: registry,
		gate:     gate,
		results:  results,
		log:      log,
	}
}

// run claims and dispatches requests until ctx ends.
func (sv *supervisor) run(ctx context.Context) {
	for {
		req, err := sv.gate.next(ctx)
		if err != nil {
			return
		}
		sv.dispatch(ctx, req)
	}
}

// dispatch starts one independent execution unit for req and returns without
// waiting for it.
func (sv *supervisor) dispatch(ctx context.Context, req *ToolRequest) {
	sv.wg.Add(1)
	sv.inflight.Add(1)
	sv.log.Debug("s2s: tool dispatched", "tool", req.Name, "tool_use_id", req.ToolUseID)
	go func() {
		defer sv.wg.Done()
		defer sv.inflight.Add(-1)
		res := sv.execute(ctx, req)
		if res == nil {
			return // cancelled mid-flight, result discarded
		}
		if err := sv.results.Put(res); err != nil {
			sv.log.Debug("s2s: tool result discarded after close", "tool", req.Name, "tool_use_id", req.ToolUseID)
		}
	}()
}

// execute runs one tool invocation to completion and builds its result.
// Lookup and argument failures become error-carrying results; they never
// propagate. A nil return means the execution was cancelled and no result
// should be emitted.
func (sv *supervisor) execute(ctx context.Context, req *ToolRequest) *ToolResult {
	t, ok := sv.registry.Lookup(req.Name)
	if !ok {
		err := fmt.Errorf("s2s: unknown tool %q", req.Name)
		sv.log.Warn("s2s: tool not found", "tool", req.Name, "tool_use_id", req.ToolUseID)
		return errorResult(req, err, toolErrorText)
	}

	out, err := invoke(ctx, t, req.Args)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled during CLOSING: fire-and-forget.
			return nil
		}
		if errors.Is(err, tool.ErrInvalidArgs) {
			sv.log.Warn("s2s: tool arguments rejected", "tool", req.Name, "tool_use_id", req.ToolUseID, "error", err)
			return errorResult(req, err, toolInvalidArgsText)
		}
		sv.log.Warn("s2s: tool execution failed", "tool", req.Name, "tool_use_id", req.ToolUseID, "error", err)
		return errorResult(req, err, toolErrorText)
	}

	payload, err := json.Marshal(map[string]any{"result": out})
	if err != nil {
		sv.log.Warn("s2s: tool result not serializable", "tool", req.Name, "tool_use_id", req.ToolUseID, "error", err)
		return errorResult(req, err, toolErrorText)
	}
	return &ToolResult{
		ToolUseID: req.ToolUseID,
		Name:      req.Name,
		PromptID:  req.PromptID,
		Payload:   payload,
	}
}

// invoke calls the tool, converting a panic into an error so a misbehaving
// tool cannot take the session down.
func invoke(ctx context.Context, t tool.Tool, args json.RawMessage) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("s2s: tool panic: %v", r)
		}
	}()
	return t.Invoke(ctx, args)
}

// errorResult builds the error-carrying result for req. The wire payload
// keeps the fixed error text; the causing error rides along for logging and
// the transcript.
func errorResult(req *ToolRequest, cause error, text string) *ToolResult {
	payload, _ := json.Marshal(map[string]any{"result": text})
	return &ToolResult{
		ToolUseID: req.ToolUseID,
		Name:      req.Name,
		PromptID:  req.PromptID,
		Payload:   payload,
		Err:       cause,
	}
}

// wait blocks until every in-flight execution has finished or the timeout
// elapses. Executions that ignore cancellation past the timeout are
// abandoned.
func (sv *supervisor) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		sv.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// InFlight reports the number of executions currently running.
func (sv *supervisor) InFlight() int {
	return int(sv.inflight.Load())
}
