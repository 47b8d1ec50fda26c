// Package tabs keeps the agent's view of open tabs in a stable order, so tab
// indices mean the same thing across backends and across calls.
package tabs

import (
	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Order is the ordered set of open tab ids. The zero value is empty and ready to use.
type Order[K comparable] struct {
	ids []K
}

// Sync drops ids missing from live and appends ids seen for the first time
// (tabs the page opened itself), preserving live's order for those.
func (o *Order[K]) Sync(live []K) {
	present := make(map[K]bool, len(live))
	for _, id := range live {
		present[id] = true
	}

	kept := make([]K, 0, len(live))
	known := make(map[K]bool, len(o.ids))
	for _, id := range o.ids {
		if present[id] && !known[id] {
			kept = append(kept, id)
			known[id] = true
		}
	}
	for _, id := range live {
		if !known[id] {
			kept = append(kept, id)
			known[id] = true
		}
	}
	o.ids = kept
}

// Add appends id unless it is already tracked.
func (o *Order[K]) Add(id K) {
	if o.Index(id) < 0 {
		o.ids = append(o.ids, id)
	}
}

func (o *Order[K]) Remove(id K) {
	if i := o.Index(id); i >= 0 {
		o.ids = append(o.ids[:i], o.ids[i+1:]...)
	}
}

// Index returns the position of id, or -1.
func (o *Order[K]) Index(id K) int {
	for i, existing := range o.ids {
		if existing == id {
			return i
		}
	}
	return -1
}

func (o *Order[K]) Len() int { return len(o.ids) }

// IDs returns a copy of the ordered ids.
func (o *Order[K]) IDs() []K {
	return append([]K(nil), o.ids...)
}

// First returns the first tab, or the zero value when none is open.
func (o *Order[K]) First() K {
	var zero K
	if len(o.ids) == 0 {
		return zero
	}
	return o.ids[0]
}

// SwitchTarget resolves the tab at index for a switch.
func (o *Order[K]) SwitchTarget(index int) (K, error) {
	var zero K
	if index < 0 || index >= len(o.ids) {
		return zero, schemas.NewOperationError("switch_tab", "No tab at index %d (%d tabs open)", index, len(o.ids))
	}
	return o.ids[index], nil
}

// CloseTarget resolves the tab at index for a close. The last open tab can
// never be closed.
func (o *Order[K]) CloseTarget(index int) (K, error) {
	var zero K
	if len(o.ids) <= 1 {
		return zero, schemas.NewOperationError("close_tab", "Cannot close the only remaining tab")
	}
	if index < 0 || index >= len(o.ids) {
		return zero, schemas.NewOperationError("close_tab", "Tab index %d out of bounds (%d tabs open)", index, len(o.ids))
	}
	return o.ids[index], nil
}
