package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/flemzord/tiermem/internal/engine"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Sessions: g.engine.Status().Sessions,
		})
	}
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64         `json:"uptime_seconds"`
	Engine        engine.Status `json:"engine"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
			Engine:        g.engine.Status(),
		})
	}
}

// turnRequest is the JSON body for POST /api/turns.
type turnRequest struct {
	IsGroup     bool     `json:"is_group"`
	TargetID    int64    `json:"target_id"`
	UserMessage string   `json:"user_message"`
	Attachments []string `json:"attachments,omitempty"`
	BotResponse string   `json:"bot_response"`
}

// handleAddTurn records one completed exchange. Responds 202: the turn
// is stored, but any triggered summarization runs in the background.
func (g *Gateway) handleAddTurn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.limiter.allow("turn"); err != nil {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		var req turnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.UserMessage == "" || req.BotResponse == "" {
			http.Error(w, "user_message and bot_response are required", http.StatusBadRequest)
			return
		}

		g.engine.AddTurn(req.IsGroup, req.TargetID, req.UserMessage, req.Attachments, req.BotResponse)
		w.WriteHeader(http.StatusAccepted)
	}
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	History string `json:"history"`
}

// handleHistory composes the memory context for a session. The optional
// query parameter enables the related-history section.
func (g *Gateway) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		isGroup, targetID, ok := parseTarget(w, r)
		if !ok {
			return
		}
		query := r.URL.Query().Get("query")
		history := g.engine.History(r.Context(), isGroup, targetID, query)
		writeJSON(w, http.StatusOK, historyResponse{History: history})
	}
}

// searchResult is one similarity hit in the GET /api/search response.
type searchResult struct {
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	Timestamp   time.Time `json:"timestamp"`
	Score       float32   `json:"score"`
}

// handleSearch runs a similarity search over a session's archived turns.
func (g *Gateway) handleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.limiter.allow("search"); err != nil {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		isGroup, targetID, ok := parseTarget(w, r)
		if !ok {
			return
		}
		query := r.URL.Query().Get("query")
		if query == "" {
			http.Error(w, "query is required", http.StatusBadRequest)
			return
		}
		topK := 0
		if raw := r.URL.Query().Get("top_k"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "top_k must be a positive integer", http.StatusBadRequest)
				return
			}
			topK = n
		}

		hits := g.engine.SearchArchive(r.Context(), isGroup, targetID, query, topK)
		results := make([]searchResult, 0, len(hits))
		for _, h := range hits {
			results = append(results, searchResult{
				UserMessage: h.Message.UserMessage,
				BotResponse: h.Message.BotResponse,
				Timestamp:   h.Message.Timestamp,
				Score:       h.Score,
			})
		}
		writeJSON(w, http.StatusOK, results)
	}
}

// handleClearConversation wipes all tiers for one session.
func (g *Gateway) handleClearConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		isGroup, targetID, ok := parseTarget(w, r)
		if !ok {
			return
		}
		if !g.engine.ClearConversation(r.Context(), isGroup, targetID) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleClearAll wipes all tiers for every session.
func (g *Gateway) handleClearAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.engine.ClearAll(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}

// sweepResponse is the JSON response for POST /api/sweep.
type sweepResponse struct {
	Archived int `json:"archived"`
}

// handleSweep triggers an archive sweep immediately.
func (g *Gateway) handleSweep() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := g.engine.Sweep(r.Context())
		if err != nil {
			http.Error(w, "sweep failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sweepResponse{Archived: n})
	}
}

// handleSnapshot saves the snapshot immediately.
func (g *Gateway) handleSnapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.engine.SaveSnapshot(r.Context()); err != nil {
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// parseTarget reads the is_group and target_id query parameters shared by
// the session-scoped endpoints. On failure it writes a 400 and returns
// ok=false.
func parseTarget(w http.ResponseWriter, r *http.Request) (isGroup bool, targetID int64, ok bool) {
	q := r.URL.Query()

	if raw := q.Get("is_group"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "is_group must be a boolean", http.StatusBadRequest)
			return false, 0, false
		}
		isGroup = v
	}

	raw := q.Get("target_id")
	if raw == "" {
		http.Error(w, "target_id is required", http.StatusBadRequest)
		return false, 0, false
	}
	targetID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "target_id must be an integer", http.StatusBadRequest)
		return false, 0, false
	}
	return isGroup, targetID, true
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
