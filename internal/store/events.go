package store

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent describes one row written by a gateway. For deletes Row holds
// the row as it was before removal.
type ChangeEvent struct {
	Table  string    `json:"table"`
	Type   EventType `json:"type"`
	Row    Row       `json:"row"`
	Origin string    `json:"origin,omitempty"`
	At     time.Time `json:"at"`
}

// Year and Month are convenience accessors for month-scoped tables.
func (e ChangeEvent) Year() int  { return e.Row.Int("year") }
func (e ChangeEvent) Month() int { return e.Row.Int("month") }

// ToJSON converts the event to JSON bytes
func (e ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChangeEventFromJSON decodes an event. Numbers in Row come back as float64,
// which the Row accessors and Compare handle.
func ChangeEventFromJSON(data []byte) (ChangeEvent, error) {
	var evt ChangeEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return ChangeEvent{}, err
	}
	return evt, nil
}

// Publisher receives events produced by a gateway write.
type Publisher interface {
	Publish(evt ChangeEvent)
}

// Hub publishes gateway events and serves table-scoped subscriptions.
type Hub interface {
	Publisher
	Subscribe(table string, filters []Filter, fn func(ChangeEvent)) (unsubscribe func())
}

// Events builds one event per row.
func Events(table string, typ EventType, rows []Row, at time.Time) []ChangeEvent {
	out := make([]ChangeEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, ChangeEvent{Table: table, Type: typ, Row: r, At: at})
	}
	return out
}
