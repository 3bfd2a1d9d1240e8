package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/l10nsync/internal/access"
	"github.com/leapstack-labs/l10nsync/internal/engine"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

const (
	sessionName = "l10nsync"

	flashSuccess = "success"
	flashError   = "error"

	maxEditBody = 1 << 20
)

// successMessages are flashed after a successful operation.
var successMessages = map[core.Operation]string{
	core.OpCommit: "All pending translations were committed.",
	core.OpUpdate: "All repositories were updated.",
	core.OpPush:   "All repositories were pushed.",
	core.OpReset:  "All repositories have been reset.",
}

// Message is a flash notification shown on a node page.
type Message struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// NodePage is the response of GET /projects/...
type NodePage struct {
	Node     string            `json:"node"`
	Status   engine.NodeStatus `json:"status"`
	Messages []Message         `json:"messages"`
}

func nodeFromRequest(r *http.Request) core.NodePath {
	return core.NodePath{
		Project:   chi.URLParam(r, "project"),
		Component: chi.URLParam(r, "component"),
		Language:  chi.URLParam(r, "lang"),
	}
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	op, err := core.ParseOperation(chi.URLParam(r, "op"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error(), core.CodeNotFound)
		return
	}
	node := nodeFromRequest(r)
	caller := access.CallerFrom(r.Context())

	out, err := s.engine.Run(r.Context(), caller, op, node)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, out)
		return
	}

	if out.Success {
		s.flash(w, r, flashSuccess, successMessages[op])
	} else {
		s.flash(w, r, flashError, out.Summary)
	}
	http.Redirect(w, r, node.URL(), http.StatusSeeOther)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var edits map[string]string
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEditBody))
	if err := dec.Decode(&edits); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid edit payload: %v", err), "")
		return
	}

	node := nodeFromRequest(r)
	n, err := s.engine.RecordEdits(r.Context(), access.CallerFrom(r.Context()), node, edits)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"node": node.String(), "recorded": n})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	caller := access.CallerFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"projects": s.engine.Overview(r.Context(), caller)})
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	node := nodeFromRequest(r)
	st, err := s.engine.Status(r.Context(), access.CallerFrom(r.Context()), node)
	if err != nil {
		s.writeError(w, err)
		return
	}
	page := NodePage{Node: node.String(), Status: st, Messages: s.consumeFlashes(w, r)}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer", "")
			return
		}
		limit = n
	}
	runs, err := s.engine.History(r.Context(), access.CallerFrom(r.Context()), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	detail, err := s.engine.GetRun(r.Context(), access.CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleEvents streams every published outcome the caller may view, in
// order, as a datastar signal patch.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	updates := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)

	ctx := r.Context()
	caller := access.CallerFrom(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			events, dropped := s.notifier.Drain(updates)
			if dropped > 0 {
				s.logger.Warn("event stream fell behind", "dropped", dropped)
			}
			for _, event := range events {
				if !s.engine.CanView(ctx, caller, event.Outcome.Node) {
					continue
				}
				if err := sse.MarshalAndPatchSignals(map[string]any{"outcome": event}); err != nil {
					s.logger.Debug("event stream closed", "error", err)
					return
				}
			}
		}
	}
}

func (s *Server) flash(w http.ResponseWriter, r *http.Request, level, text string) {
	session, _ := s.sessionStore.Get(r, sessionName)
	session.AddFlash(text, level)
	if err := session.Save(r, w); err != nil {
		s.logger.Error("failed to save session", "error", err)
	}
}

func (s *Server) consumeFlashes(w http.ResponseWriter, r *http.Request) []Message {
	session, _ := s.sessionStore.Get(r, sessionName)
	messages := []Message{}
	for _, level := range []string{flashSuccess, flashError} {
		for _, f := range session.Flashes(level) {
			if text, ok := f.(string); ok {
				messages = append(messages, Message{Level: level, Text: text})
			}
		}
	}
	if len(messages) > 0 {
		if err := session.Save(r, w); err != nil {
			s.logger.Error("failed to save session", "error", err)
		}
	}
	return messages
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, err.Error(), core.CodeForbidden)
	case errors.Is(err, core.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error(), core.CodeNotFound)
	default:
		s.logger.Error("request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error(), core.CodeOf(err))
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string, code core.ErrorCode) {
	body := map[string]string{"error": msg}
	if code != "" {
		body["code"] = string(code)
	}
	writeJSON(w, status, body)
}
