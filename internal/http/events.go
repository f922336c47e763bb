package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"budget/internal/log"
	"budget/internal/store"
)

const (
	eventBuffer       = 64
	heartbeatInterval = 25 * time.Second
)

// eventFilters reads the optional ?year= and ?month= row filters.
func eventFilters(r *http.Request) ([]store.Filter, error) {
	var filters []store.Filter
	for _, col := range []string{"year", "month"} {
		v := r.URL.Query().Get(col)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", col, v)
		}
		filters = append(filters, store.Eq(col, n))
	}
	return filters, nil
}

// handleEvents streams change events as Server-Sent Events. ?table= scopes
// the stream to one table; without it every table is streamed. Events that
// arrive faster than the client reads are dropped and the client is told to
// refetch with a "resync" event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table != "" {
		if err := store.CheckTable(table); err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
	}
	filters, err := eventFilters(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	rc := http.NewResponseController(w)
	events := make(chan store.ChangeEvent, eventBuffer)
	overflow := make(chan struct{}, 1)
	unsubscribe := s.deps.Gateway.Subscribe(table, filters, func(evt store.ChangeEvent) {
		select {
		case events <- evt:
		default:
			select {
			case overflow <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Streaming not supported", log.FieldError, err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case <-heartbeat.C:
			_, err = fmt.Fprint(w, ": ping\n\n")
		case <-overflow:
			_, err = fmt.Fprint(w, "event: resync\ndata: {}\n\n")
		case evt := <-events:
			var data []byte
			if data, err = evt.ToJSON(); err != nil {
				log.FromContext(ctx).ErrorContext(ctx, "Failed to encode change event", log.FieldTable, evt.Table, log.FieldError, err)
				continue
			}
			_, err = fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			return
		}
	}
}
