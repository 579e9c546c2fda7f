package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/frontdesk/internal/conversation"
	"github.com/MrWong99/frontdesk/internal/dashboard"
	"github.com/MrWong99/frontdesk/internal/ledger"
)

// maxPromptBytes bounds a single chat message.
const maxPromptBytes = 8 << 10

type pageData struct {
	Company    string
	ModelLabel string
	Turns      []conversation.Turn
	Flash      conversation.Flash
	Dashboard  dashboard.Snapshot
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	data := pageData{
		Company:    s.companyName(),
		ModelLabel: s.modelLabel,
		Turns:      sess.Turns(),
		Flash:      sess.TakeFlash(),
		Dashboard:  s.Snapshot(),
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		logRenderError(r, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleChat handles the form post and redirects back to the page. Model
// errors are reported through the session flash on the next render.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, maxPromptBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
		return
	}
	text := strings.TrimSpace(r.PostForm.Get("message"))
	if text != "" {
		// Failures are already recorded on the session.
		_, _ = s.rcpt.HandleTurn(r.Context(), sess, text)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	s.rcpt.Reset(sess)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

type leadsResponse struct {
	Count   int            `json:"count"`
	Entries []ledger.Entry `json:"entries"`
}

func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeadsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := s.ledger.Entries(limit)
	if err != nil {
		logRenderError(r, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger unavailable"})
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, leadsResponse{Count: s.ledger.Count(), Entries: entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode"}`, http.StatusInternalServerError)
	}
}
