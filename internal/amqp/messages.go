package amqp

import (
	"fmt"

	"budget/internal/store"
)

const (
	routingPrefix = "change."
	bindingKey    = routingPrefix + "#"
)

// RoutingKey is the topic a table's events are published under.
func RoutingKey(table string) string {
	return routingPrefix + table
}

func decodeChange(body []byte) (store.ChangeEvent, error) {
	evt, err := store.ChangeEventFromJSON(body)
	if err != nil {
		return store.ChangeEvent{}, err
	}
	if evt.Table == "" {
		return store.ChangeEvent{}, fmt.Errorf("change event without table")
	}
	switch evt.Type {
	case store.EventInsert, store.EventUpdate, store.EventDelete:
	default:
		return store.ChangeEvent{}, fmt.Errorf("unknown change type %q", evt.Type)
	}
	return evt, nil
}
