// Package checklist records the ordered steps a payment flow went through so
// they can be returned to the caller together with the response.
package checklist

// Status is the outcome of a single step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Item is a single checklist entry.
type Item struct {
	Step   string `json:"step"`
	Status Status `json:"status"`
	Detail string `json:"detail"`
}

// Checklist is an append-only list of items. It is not safe for concurrent
// use, every request owns its own checklist.
type Checklist struct {
	items []Item
}

// New returns an empty checklist.
func New() *Checklist {
	return &Checklist{items: []Item{}}
}

// Pass appends a passed step.
func (c *Checklist) Pass(step, detail string) {
	c.add(step, StatusPassed, detail)
}

// Fail appends a failed step.
func (c *Checklist) Fail(step, detail string) {
	c.add(step, StatusFailed, detail)
}

// Skip appends a skipped step.
func (c *Checklist) Skip(step, detail string) {
	c.add(step, StatusSkipped, detail)
}

// Append copies all the items of other at the end of c.
func (c *Checklist) Append(other *Checklist) {
	if other == nil {
		return
	}
	c.items = append(c.items, other.items...)
}

// Items returns a copy of the recorded items. It never returns nil so the
// JSON rendering is always an array.
func (c *Checklist) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Last returns the last recorded item and false if the checklist is empty.
func (c *Checklist) Last() (Item, bool) {
	if len(c.items) == 0 {
		return Item{}, false
	}
	return c.items[len(c.items)-1], true
}

// Len returns the number of recorded items.
func (c *Checklist) Len() int {
	return len(c.items)
}

// Failed reports whether any recorded step failed.
func (c *Checklist) Failed() bool {
	for _, it := range c.items {
		if it.Status == StatusFailed {
			return true
		}
	}
	return false
}

func (c *Checklist) add(step string, status Status, detail string) {
	c.items = append(c.items, Item{Step: step, Status: status, Detail: detail})
}
