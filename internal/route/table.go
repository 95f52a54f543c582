// Package route maps source chats to the destination chats their homework
// is forwarded to.
package route

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	pairSeparator = ","
	keySeparator  = ":"
	destSeparator = "+"
)

// ConfigError reports a malformed route configuration.
type ConfigError struct {
	Pair   string // offending pair text, empty when the whole config is at fault
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Pair == "" {
		return "route config: " + e.Reason
	}
	if e.Err != nil {
		return fmt.Sprintf("route config: pair %q: %s: %v", e.Pair, e.Reason, e.Err)
	}
	return fmt.Sprintf("route config: pair %q: %s", e.Pair, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Table is an immutable source -> destinations mapping.
// Every key maps to a non-empty, duplicate-free, ordered destination list.
type Table struct {
	routes  map[int64][]int64
	sources []int64 // config order
}

// Empty returns a table with no routes.
func Empty() *Table {
	return &Table{routes: map[int64][]int64{}}
}

// Parse builds a table from "src:dst+dst,src:dst" text.
// Blank text yields an empty table. Any malformed pair fails the whole parse.
func Parse(text string) (*Table, error) {
	t := Empty()
	if strings.TrimSpace(text) == "" {
		return t, nil
	}

	for _, raw := range strings.Split(text, pairSeparator) {
		pair := strings.TrimSpace(raw)
		if pair == "" {
			return nil, &ConfigError{Reason: "empty pair in route list"}
		}

		key, dests, ok := strings.Cut(pair, keySeparator)
		if !ok {
			return nil, &ConfigError{Pair: pair, Reason: "missing ':' separator"}
		}
		if strings.Contains(dests, keySeparator) {
			return nil, &ConfigError{Pair: pair, Reason: "more than one ':' separator"}
		}

		src, err := parseID(key)
		if err != nil {
			return nil, &ConfigError{Pair: pair, Reason: "invalid source id", Err: err}
		}
		if _, dup := t.routes[src]; dup {
			return nil, &ConfigError{Pair: pair, Reason: fmt.Sprintf("source %d listed more than once", src)}
		}

		var list []int64
		seen := make(map[int64]bool)
		for _, d := range strings.Split(dests, destSeparator) {
			dst, err := parseID(d)
			if err != nil {
				return nil, &ConfigError{Pair: pair, Reason: "invalid destination id", Err: err}
			}
			if seen[dst] {
				continue
			}
			seen[dst] = true
			list = append(list, dst)
		}

		t.routes[src] = list
		t.sources = append(t.sources, src)
	}
	return t, nil
}

// parseID accepts signed integers: Telegram group ids are negative.
func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty id")
	}
	return strconv.ParseInt(s, 10, 64)
}

// Lookup returns a copy of the destinations for src.
func (t *Table) Lookup(src int64) ([]int64, bool) {
	if t == nil {
		return nil, false
	}
	dests, ok := t.routes[src]
	if !ok || len(dests) == 0 {
		return nil, false
	}
	out := make([]int64, len(dests))
	copy(out, dests)
	return out, true
}

// Len returns the number of routed sources.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.routes)
}

// Sources returns the routed source ids in config order.
func (t *Table) Sources() []int64 {
	if t == nil {
		return nil
	}
	out := make([]int64, len(t.sources))
	copy(out, t.sources)
	return out
}

// String renders the table back into config form, sources sorted ascending.
func (t *Table) String() string {
	if t.Len() == 0 {
		return ""
	}
	srcs := t.Sources()
	sort.Slice(srcs, func(i, j int) bool { return srcs[i] < srcs[j] })

	pairs := make([]string, 0, len(srcs))
	for _, src := range srcs {
		dests := t.routes[src]
		parts := make([]string, len(dests))
		for i, d := range dests {
			parts[i] = strconv.FormatInt(d, 10)
		}
		pairs = append(pairs, strconv.FormatInt(src, 10)+keySeparator+strings.Join(parts, destSeparator))
	}
	return strings.Join(pairs, pairSeparator)
}
