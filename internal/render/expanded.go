package render

import (
	"slices"
	"strings"
)

// Expanded is the set of event ids whose cards are open. It is a value: the
// methods that change membership return a new set.
type Expanded map[string]struct{}

// ParseExpanded reads the comma-separated form produced by String. Blank
// entries are ignored.
func ParseExpanded(s string) Expanded {
	out := Expanded{}
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

// NewExpanded builds a set from ids.
func NewExpanded(ids ...string) Expanded {
	out := make(Expanded, len(ids))
	for _, id := range ids {
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

func (e Expanded) Has(id string) bool {
	_, ok := e[id]
	return ok
}

// IDs returns the members in sorted order.
func (e Expanded) IDs() []string {
	ids := make([]string, 0, len(e))
	for id := range e {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e Expanded) String() string {
	return strings.Join(e.IDs(), ",")
}

// Toggle returns a copy of e with id flipped.
func (e Expanded) Toggle(id string) Expanded {
	out := make(Expanded, len(e)+1)
	for k := range e {
		out[k] = struct{}{}
	}
	if _, ok := out[id]; ok {
		delete(out, id)
	} else {
		out[id] = struct{}{}
	}
	return out
}
