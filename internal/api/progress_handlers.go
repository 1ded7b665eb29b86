package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/domainscope/sitemapper/internal/progress"
)

const (
	defaultEventLimit    = 100
	maxEventLimit        = 1000
	streamSubscriberSize = 256
	streamHeartbeat      = 15 * time.Second
)

// recentEvents handles GET /api/v1/events?limit=. It answers with the newest
// progress events captured by the ring sink, newest first.
func (s *Server) recentEvents(w http.ResponseWriter, r *http.Request) {
	if s.ring == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event capture disabled")
		return
	}
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if val > maxEventLimit {
			val = maxEventLimit
		}
		limit = val
	}
	events := s.ring.Recent(limit)
	s.writeJSON(w, http.StatusOK, map[string]any{"events": toEventDTOs(events)})
}

// streamEvents handles GET /api/v1/events/stream with server-sent events.
// Each flushed progress event becomes one SSE message; a comment line is sent
// as a heartbeat so idle connections stay alive through proxies. The stream
// ends when the client disconnects or the hub shuts down.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event stream disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := s.hub.Subscribe(streamSubscriberSize)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case evt, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, evt); err != nil {
				if !errors.Is(err, http.ErrHandlerTimeout) {
					s.logger.Debug("event stream write failed", zap.Error(err))
				}
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt progress.Event) error {
	payload, err := json.Marshal(toEventDTO(evt))
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + string(evt.Stage) + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}

type eventDTO struct {
	CrawlID     string    `json:"crawl_id"`
	TS          time.Time `json:"ts"`
	Stage       string    `json:"stage"`
	Host        string    `json:"host,omitempty"`
	URL         string    `json:"url,omitempty"`
	Bytes       int64     `json:"bytes,omitempty"`
	Links       int64     `json:"links,omitempty"`
	Pages       int64     `json:"pages,omitempty"`
	StatusClass string    `json:"status_class,omitempty"`
	DurationMs  int64     `json:"duration_ms,omitempty"`
	BodyHash    string    `json:"body_hash,omitempty"`
	Note        string    `json:"note,omitempty"`
}

func toEventDTOs(in []progress.Event) []eventDTO {
	out := make([]eventDTO, 0, len(in))
	for _, evt := range in {
		out = append(out, toEventDTO(evt))
	}
	return out
}

func toEventDTO(evt progress.Event) eventDTO {
	return eventDTO{
		CrawlID:     evt.CrawlUUID().String(),
		TS:          evt.TS,
		Stage:       string(evt.Stage),
		Host:        evt.Host,
		URL:         evt.URL,
		Bytes:       evt.Bytes,
		Links:       evt.Links,
		Pages:       evt.Pages,
		StatusClass: string(evt.StatusClass),
		DurationMs:  evt.Dur.Milliseconds(),
		BodyHash:    evt.BodyHash,
		Note:        evt.Note,
	}
}
