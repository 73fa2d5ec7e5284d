// Package providertest runs a deterministic in-process messaging provider
// speaking the provider wire protocol, for tests.
package providertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/oggyb/outreach-campaigns/internal/request"
	"github.com/oggyb/outreach-campaigns/internal/response"
)

type message struct {
	to        string
	body      string
	status    string
	reply     string
	replyTime string
}

// Server is a scriptable fake provider. Sent messages start "queued" and keep
// whatever status and reply the test assigns.
type Server struct {
	srv *httptest.Server

	mu        sync.Mutex
	seq       int
	messages  map[string]*message
	sends     []request.ProviderSendRequest
	rejected  map[string]bool
	failSends bool
}

// New starts a fake provider that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		messages: make(map[string]*message),
		rejected: make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Post("/send", s.handleSend)
	r.Get("/status/{id}", s.handleStatus)
	r.Get("/reply/{id}", s.handleReply)

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the provider base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts the server down, making every later call a transport failure.
func (s *Server) Close() {
	s.srv.Close()
}

// SetStatus assigns the status returned for id.
func (s *Server) SetStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		m.status = status
	}
}

// SetReply makes id report a reply.
func (s *Server) SetReply(id, text, timestamp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		m.reply = text
		m.replyTime = timestamp
	}
}

// RejectPhone makes sends to phone fail with 422.
func (s *Server) RejectPhone(phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[phone] = true
}

// FailSends makes every send answer 503 while enabled.
func (s *Server) FailSends(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSends = fail
}

// Sends returns every accepted or rejected send request, in arrival order.
func (s *Server) Sends() []request.ProviderSendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]request.ProviderSendRequest, len(s.sends))
	copy(out, s.sends)
	return out
}

// IDs returns the ids issued so far, in issue order.
func (s *Server) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, s.seq)
	for i := 1; i <= s.seq; i++ {
		out = append(out, messageID(i))
	}
	return out
}

func messageID(n int) string {
	return fmt.Sprintf("MSG%07d", n)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req request.ProviderSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" || !strings.HasPrefix(req.To, "+") {
		http.Error(w, `{"detail":"malformed payload"}`, http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	s.sends = append(s.sends, req)
	if s.failSends {
		s.mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if s.rejected[req.To] {
		s.mu.Unlock()
		http.Error(w, `{"detail":"rejected"}`, http.StatusUnprocessableEntity)
		return
	}
	s.seq++
	id := messageID(s.seq)
	s.messages[id] = &message{to: req.To, body: req.Body, status: "queued"}
	s.mu.Unlock()

	writeJSON(w, response.ProviderSendResponse{MessageID: id, Status: "queued"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	m, ok := s.messages[id]
	var status string
	if ok {
		status = m.status
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, `{"detail":"Message ID not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, response.ProviderStatusResponse{MessageID: id, Status: status})
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	m, ok := s.messages[id]
	var out response.ProviderReplyResponse
	if ok {
		out.MessageID = id
		if m.reply != "" {
			reply, ts := m.reply, m.replyTime
			out.Reply = &reply
			out.Timestamp = &ts
		}
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, `{"detail":"Message ID not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
