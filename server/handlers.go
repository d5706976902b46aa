package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agentgraph-go/agentgraph/agents"
	"github.com/agentgraph-go/agentgraph/graph"
	"github.com/agentgraph-go/agentgraph/graph/model"
	"github.com/agentgraph-go/agentgraph/graph/store"
)

// queryRequest is the body of POST /query and POST /query/stream.
type queryRequest struct {
	Message   string `json:"message"`
	ThreadID  string `json:"thread_id,omitempty"`
	AgentType string `json:"agent_type,omitempty"`
}

// autoQueryRequest is the body of POST /query/auto.
type autoQueryRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// queryResponse answers /query and /query/auto.
type queryResponse struct {
	Response  string `json:"response"`
	ThreadID  string `json:"thread_id"`
	AgentType string `json:"agent_type,omitempty"`
	RoutedTo  string `json:"routed_to,omitempty"`
}

// conversationResponse answers GET /conversation/{threadID}.
type conversationResponse struct {
	ThreadID string              `json:"thread_id"`
	Messages []conversationEntry `json:"messages"`
	Version  int                 `json:"version"`
}

type conversationEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	agentType := req.AgentType
	if agentType == "" {
		agentType = "business"
	}
	g, ok := s.graphFor(agentType)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid agent_type: %s (must be business or database)", agentType))
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	final, err := s.invoke(r.Context(), g, threadID, req.Message)
	if err != nil {
		s.writeInvokeError(w, threadID, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Response:  lastContent(final),
		ThreadID:  threadID,
		AgentType: agentType,
	})
}

func (s *Server) handleQueryAuto(w http.ResponseWriter, r *http.Request) {
	var req autoQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	final, err := s.invoke(r.Context(), s.supervisor, threadID, req.Message)
	if err != nil {
		s.writeInvokeError(w, threadID, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Response: lastContent(final),
		ThreadID: threadID,
		RoutedTo: final.Next,
	})
}

// streamEvent is one SSE data payload for POST /query/stream.
type streamEvent struct {
	Node     string              `json:"node"`
	Next     string              `json:"next,omitempty"`
	Messages []conversationEntry `json:"messages,omitempty"`
}

func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	agentType := req.AgentType
	if agentType == "" {
		agentType = "business"
	}
	g, ok := s.graphFor(agentType)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid agent_type: %s (must be business or database)", agentType))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	// Client disconnect cancels r.Context() and with it the invocation.
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	unlock := s.locks.acquire(threadID)
	defer unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Thread-ID", threadID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	input := agents.State{Messages: []model.Message{model.UserMessage(req.Message)}}

	for ev := range g.Stream(ctx, threadID, input) {
		if ev.Node == graph.End {
			if ev.Err != nil {
				payload, _ := json.Marshal(errorResponse{Error: ev.Err.Error()})
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			} else {
				payload, _ := json.Marshal(queryResponse{
					Response:  lastContent(ev.Update),
					ThreadID:  threadID,
					AgentType: agentType,
				})
				fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
			}
			flusher.Flush()
			return
		}

		payload, _ := json.Marshal(streamEvent{
			Node:     ev.Node,
			Next:     ev.Update.Next,
			Messages: toEntries(ev.Update.Messages),
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	cp, err := s.store.Get(r.Context(), threadID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "thread not found: "+threadID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, conversationResponse{
		ThreadID: threadID,
		Messages: toEntries(cp.State.Messages),
		Version:  cp.Version,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	unlock := s.locks.acquire(threadID)
	defer unlock()

	err := s.store.Delete(r.Context(), threadID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "thread not found: "+threadID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{"status": "ok"}

	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			health["status"] = "degraded"
			health["store"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, health)
			return
		}
		health["store"] = "ok"
	}

	writeJSON(w, http.StatusOK, health)
}

// invoke runs one graph turn under the per-thread lock and the request
// timeout. The input message gets its UUID here, at the boundary.
func (s *Server) invoke(ctx context.Context, g *graph.CompiledGraph[agents.State], threadID, message string) (agents.State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	unlock := s.locks.acquire(threadID)
	defer unlock()

	input := agents.State{Messages: []model.Message{model.UserMessage(message)}}
	return g.Invoke(ctx, threadID, input)
}

// writeInvokeError maps engine failures onto HTTP status codes.
func (s *Server) writeInvokeError(w http.ResponseWriter, threadID string, err error) {
	s.logger.Error("invocation failed", "thread_id", threadID, "error", err)

	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}

	var engErr *graph.EngineError
	if errors.As(err, &engErr) && engErr.Code == graph.CodeStoreSave {
		// The turn computed a result that could not be recorded; surface
		// it distinctly so clients know a retry may duplicate work.
		writeError(w, http.StatusInternalServerError, "result computed but checkpoint save failed: "+err.Error())
		return
	}

	writeError(w, status, err.Error())
}

func lastContent(s agents.State) string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Content
}

func toEntries(messages []model.Message) []conversationEntry {
	entries := make([]conversationEntry, len(messages))
	for i, msg := range messages {
		entries[i] = conversationEntry{Role: msg.Role, Content: msg.Content}
	}
	return entries
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
