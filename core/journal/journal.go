// Package journal keeps a queryable history of the status, admin status and
// property changes of a roaming network. Stores exist for JSONL files,
// SQLite and PostgreSQL.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openchargingcloud/wwcp/core/charging"
)

// Entry is one persisted change.
type Entry struct {
	Timestamp time.Time           `json:"timestamp"`
	Kind      charging.Kind       `json:"kind"`
	EntityID  string              `json:"entityId"`
	Type      charging.ChangeType `json:"type"`
	Property  string              `json:"property,omitempty"`
	Old       json.RawMessage     `json:"old,omitempty"`
	New       json.RawMessage     `json:"new,omitempty"`
}

// FromChange converts a network change into a journal entry.
func FromChange(ch charging.Change) (Entry, error) {
	e := Entry{
		Timestamp: ch.Timestamp,
		Kind:      ch.Kind,
		EntityID:  ch.EntityID,
		Type:      ch.Type,
		Property:  ch.Property,
	}
	var err error
	if e.Old, err = raw(ch.Old); err != nil {
		return Entry{}, fmt.Errorf("encode old value of %s: %w", ch.Property, err)
	}
	if e.New, err = raw(ch.New); err != nil {
		return Entry{}, fmt.Errorf("encode new value of %s: %w", ch.Property, err)
	}
	return e, nil
}

func raw(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Query defines filters for retrieving entries. Zero fields match everything.
type Query struct {
	EntityID string
	Kind     charging.Kind
	Type     charging.ChangeType
	From     time.Time
	To       time.Time
	// Limit caps the number of returned entries, oldest first.
	Limit int
}

// Match reports whether e satisfies every filter of q.
func (q Query) Match(e Entry) bool {
	switch {
	case q.EntityID != "" && e.EntityID != q.EntityID:
		return false
	case q.Kind != "" && e.Kind != q.Kind:
		return false
	case q.Type != "" && e.Type != q.Type:
		return false
	case !q.From.IsZero() && e.Timestamp.Before(q.From):
		return false
	case !q.To.IsZero() && e.Timestamp.After(q.To):
		return false
	}
	return true
}

// Store persists entries and supports querying.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, q Query) ([]Entry, error)
	Close() error
}
