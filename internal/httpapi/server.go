package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/checklist/internal/config"
	"github.com/ent0n29/checklist/internal/observability"
	"github.com/ent0n29/checklist/internal/protocol"
	"github.com/ent0n29/checklist/internal/tasks"
)

type Server struct {
	cfg      config.Config
	tasks    *tasks.Manager
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, manager *tasks.Manager, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		tasks:   manager,
		metrics: metrics,
		static:  newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only browser pages served by this process may drive the list.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/ui/settings", s.handleUISettings)
	r.Get("/v1/persistence/latency", s.handlePersistenceLatency)
	r.Get("/v1/tasks", s.handleListTasks)
	r.Post("/v1/tasks", s.handleCreateTask)
	r.Get("/v1/tasks/counts", s.handleCounts)
	r.Post("/v1/tasks/clear-completed", s.handleClearCompleted)
	r.Get("/v1/tasks/ws", s.handleTasksWS)
	r.Get("/v1/tasks/{id}", s.handleGetTask)
	r.Post("/v1/tasks/{id}/toggle", s.handleToggleTask)
	r.Delete("/v1/tasks/{id}", s.handleDeleteTask)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"store_backend": s.tasks.StoreName(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	snap := s.tasks.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"store_backend":     s.tasks.StoreName(),
		"version":           snap.Version,
		"persisted_version": s.tasks.PersistedVersion(),
		"subscribers":       s.tasks.SubscriberCount(),
	})
}

func (s *Server) handleTasksWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	snapshots, unsubscribe := s.tasks.Subscribe()
	defer unsubscribe()
	s.metrics.ActiveSubscribers.Inc()
	defer s.metrics.ActiveSubscribers.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snapshots:
				if !ok {
					// Manager closed: tell the client and unblock the read loop.
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
						time.Now().Add(time.Second))
					_ = conn.Close()
					return
				}
				msg = snapshotMessage(snap)
			case m := <-outbound:
				msg = m
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
				cancel()
				_ = conn.Close()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if outbound queue is saturated.
				s.metrics.WSWriteErrors.WithLabelValues("drop_full").Inc()
			}
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		s.applyClientMessage(parsed)
	}

	cancel()
	<-writerDone
}

// applyClientMessage runs one inbound command against the store. Unknown ids
// and blank text are no-ops; the resulting snapshot, if any, reaches every
// subscriber including the sender.
func (s *Server) applyClientMessage(msg any) {
	switch m := msg.(type) {
	case protocol.AddTask:
		if _, ok := s.tasks.Add(m.Text); ok {
			s.recordMutation("add")
		}
	case protocol.ToggleTask:
		if _, ok := s.tasks.Toggle(m.ID); ok {
			s.recordMutation("toggle")
		}
	case protocol.DeleteTask:
		if s.tasks.Delete(m.ID) {
			s.recordMutation("delete")
		}
	case protocol.ClearCompleted:
		if s.tasks.ClearCompleted() > 0 {
			s.recordMutation("clear_completed")
		}
	default:
		log.Printf("httpapi: unhandled client message %T", msg)
	}
}

func (s *Server) recordMutation(op string) {
	s.metrics.TaskMutations.WithLabelValues(op).Inc()
	counts := s.tasks.Counts()
	s.metrics.ObserveTaskCounts(counts.Total, counts.Completed)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func snapshotMessage(snap tasks.Snapshot) protocol.TasksSnapshot {
	items := make([]protocol.TaskItem, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		items = append(items, protocol.TaskItem{ID: t.ID, Text: t.Text, Completed: t.Completed})
	}
	return protocol.TasksSnapshot{
		Type:    protocol.TypeTasksSnapshot,
		Version: snap.Version,
		Tasks:   items,
		Counts: protocol.TaskCounts{
			Total:     snap.Counts.Total,
			Completed: snap.Counts.Completed,
			Active:    snap.Counts.Active,
		},
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.AddTask:
		return m.Type, true
	case protocol.ToggleTask:
		return m.Type, true
	case protocol.DeleteTask:
		return m.Type, true
	case protocol.ClearCompleted:
		return m.Type, true
	case protocol.TasksSnapshot:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
