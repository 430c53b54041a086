package testutil

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// serverConversation is the wire form the conversation service returns.
type serverConversation struct {
	ID           string          `json:"id"`
	Title        string          `json:"title,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	Messages     []serverMessage `json:"messages,omitempty"`
	MessageCount int             `json:"message_count"`
}

type serverMessage struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ConversationServer is an in-memory stand-in for the conversation service,
// serving the same routes and payloads over a chi router. Point an
// httptest.Server at Handler() to exercise the real HTTP client.
type ConversationServer struct {
	token string

	mu            sync.Mutex
	conversations map[string]*serverConversation
}

// NewConversationServer creates a server that accepts the given bearer token.
func NewConversationServer(token string) *ConversationServer {
	return &ConversationServer{
		token:         token,
		conversations: make(map[string]*serverConversation),
	}
}

// Handler returns the server's router.
func (s *ConversationServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(s.requireAuth)

	r.Route("/api/conversations", func(r chi.Router) {
		r.Post("/", s.create)
		r.Get("/", s.list)
		r.Route("/{conversationID}", func(r chi.Router) {
			r.Get("/", s.get)
			r.Patch("/", s.update)
			r.Delete("/", s.delete)
			r.Post("/messages", s.appendMessage)
		})
	})
	return r
}

// Len returns the number of stored conversations.
func (s *ConversationServer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// MessageCount returns the number of messages in the given conversation, or
// -1 when it does not exist.
func (s *ConversationServer) MessageCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return -1
	}
	return len(conv.Messages)
}

func (s *ConversationServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *ConversationServer) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string         `json:"title"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	now := time.Now().UTC()
	conv := &serverConversation{
		ID:        uuid.New().String(),
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  req.Metadata,
	}
	s.conversations[conv.ID] = conv
	out := *conv
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func (s *ConversationServer) list(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]serverConversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		summary := *conv
		summary.Messages = nil
		summary.MessageCount = len(conv.Messages)
		out = append(out, summary)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *ConversationServer) get(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	conv, ok := s.conversations[chi.URLParam(r, "conversationID")]
	var out serverConversation
	if ok {
		out = *conv
		out.MessageCount = len(conv.Messages)
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *ConversationServer) update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    *string        `json:"title"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[chi.URLParam(r, "conversationID")]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if req.Title != nil {
		conv.Title = *req.Title
	}
	if req.Metadata != nil {
		conv.Metadata = req.Metadata
	}
	conv.UpdatedAt = time.Now().UTC()
	w.WriteHeader(http.StatusNoContent)
}

func (s *ConversationServer) delete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "conversationID")
	if _, ok := s.conversations[id]; !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	delete(s.conversations, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *ConversationServer) appendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     string         `json:"type"`
		Content  string         `json:"content"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	conv, ok := s.conversations[chi.URLParam(r, "conversationID")]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	msg := serverMessage{
		ID:        uuid.New().String(),
		Type:      req.Type,
		Content:   req.Content,
		Timestamp: time.Now().UTC(),
		Metadata:  req.Metadata,
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.Timestamp
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
