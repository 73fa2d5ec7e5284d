package message

import (
	"time"

	"github.com/google/uuid"
)

// Table is the in-memory view of the whole record table inside one transaction.
// It remembers which rows were appended or touched so stores can persist only
// what changed, or skip the write entirely.
type Table struct {
	rows     []*Message
	appended map[uuid.UUID]struct{}
	touched  map[uuid.UUID]struct{}
}

// NewTable wraps rows loaded from storage. The table takes ownership of rows.
func NewTable(rows []*Message) *Table {
	return &Table{
		rows:     rows,
		appended: make(map[uuid.UUID]struct{}),
		touched:  make(map[uuid.UUID]struct{}),
	}
}

// Rows returns the live rows in insertion order. Mutating a row without calling
// Touch leaves it unpersisted.
func (t *Table) Rows() []*Message {
	return t.rows
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Append adds new rows at the end of the table.
func (t *Table) Append(msgs ...*Message) {
	for _, m := range msgs {
		t.rows = append(t.rows, m)
		t.appended[m.ID] = struct{}{}
	}
}

// Touch marks m as changed and bumps its LastUpdated.
func (t *Table) Touch(m *Message, now time.Time) {
	m.LastUpdated = Timestamp(now)
	t.touched[m.ID] = struct{}{}
}

// Changed reports whether anything needs to be persisted.
func (t *Table) Changed() bool {
	return len(t.appended) > 0 || len(t.touched) > 0
}

// Appended returns the rows added during this transaction.
func (t *Table) Appended() []*Message {
	return t.filter(func(m *Message) bool {
		_, ok := t.appended[m.ID]
		return ok
	})
}

// Touched returns pre-existing rows changed during this transaction.
func (t *Table) Touched() []*Message {
	return t.filter(func(m *Message) bool {
		if _, ok := t.appended[m.ID]; ok {
			return false
		}
		_, ok := t.touched[m.ID]
		return ok
	})
}

// Where returns the live rows matching pred, in insertion order.
func (t *Table) Where(pred func(*Message) bool) []*Message {
	return t.filter(pred)
}

// FindByProviderID returns the most recently appended row with the given provider
// id, or nil. Duplicates are tolerated.
func (t *Table) FindByProviderID(providerID string) *Message {
	if providerID == "" {
		return nil
	}
	for i := len(t.rows) - 1; i >= 0; i-- {
		if t.rows[i].ProviderID == providerID {
			return t.rows[i]
		}
	}
	return nil
}

// Update applies mutate to every row matched by match, touching the rows it
// changed, and returns how many changed.
func (t *Table) Update(match func(*Message) bool, mutate func(*Message) bool, now time.Time) int {
	changed := 0
	for _, m := range t.rows {
		if match != nil && !match(m) {
			continue
		}
		if mutate(m) {
			t.Touch(m, now)
			changed++
		}
	}
	return changed
}

func (t *Table) filter(pred func(*Message) bool) []*Message {
	var out []*Message
	for _, m := range t.rows {
		if pred(m) {
			out = append(out, m)
		}
	}
	return out
}
