package route

import (
	"log/slog"
	"sync/atomic"
)

// Router holds the active Table. Lookups read a snapshot without locking;
// Reload swaps the whole table at once.
type Router struct {
	current atomic.Pointer[Table]
	logger  *slog.Logger
}

// NewRouter creates a router serving initial (nil means no routes).
func NewRouter(initial *Table, logger *slog.Logger) *Router {
	if initial == nil {
		initial = Empty()
	}
	r := &Router{logger: logger}
	r.current.Store(initial)
	return r
}

// Lookup returns the destinations for src from the current snapshot.
func (r *Router) Lookup(src int64) ([]int64, bool) {
	return r.current.Load().Lookup(src)
}

// Snapshot returns the table active right now.
func (r *Router) Snapshot() *Table {
	return r.current.Load()
}

// Reload parses text and, only if it is entirely valid, replaces the active
// table. On error the previous table stays active.
func (r *Router) Reload(text string) (*Table, error) {
	t, err := Parse(text)
	if err != nil {
		r.logger.Warn("route reload rejected, keeping previous table",
			"routes", r.current.Load().Len(),
			"err", err,
		)
		return nil, err
	}
	prev := r.current.Swap(t)
	r.logger.Info("route table reloaded",
		"previous_routes", prev.Len(),
		"routes", t.Len(),
	)
	return t, nil
}
