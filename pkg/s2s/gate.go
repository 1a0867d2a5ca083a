package s2s

import (
	"context"
	"sync"
)

// toolGate is the one-shot rendezvous between the model stream detecting a
// tool call and the supervisor loop waiting to dispatch it. The slot holds
// at most one unclaimed request; receiving from the capacity-1 channel is
// what atomically resets the slot, so next can be reissued in a loop.
//
// Announcing while an unclaimed request is pending is a contract violation:
// the stale request is discarded in favor of the new one and the violation
// is reported to the announcer for logging. The model never issues a second
// tool call before the first completes, so a pending request at announce
// time means the earlier one was already abandoned upstream; keeping the
// newest request is the recovery that loses the least.
type toolGate struct {
	mu   sync.Mutex
	slot chan *ToolRequest
}

func newToolGate() *toolGate {
	return &toolGate{slot: make(chan *ToolRequest, 1)}
}

// announce places req in the slot. It returns a *ConcurrencyViolation when a
// stale unclaimed request had to be discarded to make room.
func (g *toolGate) announce(req *ToolRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var stale *ToolRequest
	for {
		select {
		case g.slot <- req:
			if stale != nil {
				return &ConcurrencyViolation{Stale: stale, New: req}
			}
			return nil
		default:
		}
		// Slot occupied: evict the unclaimed request. The receive can
		// still lose to a concurrent next, in which case the retry
		// send succeeds cleanly.
		select {
		case stale = <-g.slot:
		default:
		}
	}
}

// next blocks until a request is announced, empties the slot, and returns
// the request. It returns the context error when ctx ends first.
func (g *toolGate) next(ctx context.Context) (*ToolRequest, error) {
	select {
	case req := <-g.slot:
		return req, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
