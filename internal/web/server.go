package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/conorfennell/persist/internal/domain"
	"github.com/conorfennell/persist/internal/review"
	"github.com/conorfennell/persist/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
)

// Server exposes the review engine and card store as a JSON API on the
// loopback interface. There is no authentication: the server is only ever
// reached by the local GUI client.
type Server struct {
	db       *storage.DB
	engine   *review.Engine
	handler  http.Handler
	validate *validator.Validate
	shutdown chan<- struct{}

	// Default bulk-import delimiters, overridable per request.
	cardDelim      string
	frontBackDelim string

	mu       sync.Mutex
	sessions map[string]*review.Session
}

// NewServer creates and configures a new server. A send on shutdown asks the
// hosting process to drain and exit.
func NewServer(db *storage.DB, engine *review.Engine, cardDelim, frontBackDelim string, shutdown chan<- struct{}) *Server {
	s := &Server{
		db:             db,
		engine:         engine,
		validate:       validator.New(),
		shutdown:       shutdown,
		cardDelim:      cardDelim,
		frontBackDelim: frontBackDelim,
		sessions:       map[string]*review.Session{},
	}

	router := http.NewServeMux()
	s.routes(router)

	// The GUI webview calls the loopback API from its own origin.
	s.handler = cors.AllowAll().Handler(router)
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes(router *http.ServeMux) {
	router.HandleFunc("GET /cards", s.handleGetCards)
	router.HandleFunc("POST /cards", s.handleUpdateCards)
	router.HandleFunc("POST /add_cards", s.handleAddCards)
	router.HandleFunc("POST /import", s.handleImport)
	router.HandleFunc("POST /session", s.handleStartSession)
	router.HandleFunc("POST /session/{id}/answer", s.handleSessionAnswer)
	router.HandleFunc("GET /session/{id}/summary", s.handleSessionSummary)
	router.HandleFunc("GET /health", s.handleHealth)
	router.HandleFunc("POST /shutdown", s.handleShutdown)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// writeError maps engine error kinds onto distinguishable status codes so
// the client can decide whether a retry is safe.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		slog.Error("Request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Detail: err.Error()})
}

// handleGetCards returns every stored card, retired ones included.
func (s *Server) handleGetCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.db.List(storage.Filter{IncludeRetired: true})
	if err != nil {
		writeError(w, err)
		return
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	writeJSON(w, http.StatusOK, cards)
}

type cardUpdate struct {
	ID int64 `json:"id"`
	review.Update
}

// handleUpdateCards applies partial administrative updates to existing
// cards and returns the updated set in request order.
func (s *Server) handleUpdateCards(w http.ResponseWriter, r *http.Request) {
	var updates []cardUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}

	updated := make([]domain.Card, 0, len(updates))
	for _, u := range updates {
		if u.ID == 0 {
			writeError(w, domain.ErrValidation)
			return
		}
		card, err := s.engine.ApplyUpdate(u.ID, u.Update)
		if err != nil {
			writeError(w, err)
			return
		}
		updated = append(updated, card)
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleAddCards bulk-inserts new cards, assigning ids, and returns them.
func (s *Server) handleAddCards(w http.ResponseWriter, r *http.Request) {
	var newCards []domain.NewCard
	if err := json.NewDecoder(r.Body).Decode(&newCards); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}
	for _, nc := range newCards {
		if err := s.validate.Struct(nc); err != nil {
			writeError(w, domain.ErrValidation)
			return
		}
	}

	created, err := s.db.BulkInsert(newCards)
	if err != nil {
		writeError(w, err)
		return
	}
	if created == nil {
		created = []domain.Card{}
	}
	slog.Info("Added cards", "count", len(created))
	writeJSON(w, http.StatusCreated, created)
}

type importRequest struct {
	Text               string   `json:"text" validate:"required"`
	CardDelimiter      string   `json:"card_delimiter"`
	FrontBackDelimiter string   `json:"front_back_delimiter"`
	Tags               []string `json:"tags"`
}

type importResponse struct {
	Cards   []domain.Card `json:"cards"`
	Dropped int           `json:"dropped"`
}

// handleImport parses bulk pasted text into cards and stores them.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}
	if req.CardDelimiter == "" {
		req.CardDelimiter = s.cardDelim
	}
	if req.FrontBackDelimiter == "" {
		req.FrontBackDelimiter = s.frontBackDelim
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}

	created, dropped, err := s.engine.Import(req.Text, req.CardDelimiter, req.FrontBackDelimiter, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	if created == nil {
		created = []domain.Card{}
	}
	slog.Info("Imported cards", "count", len(created), "dropped", dropped)
	writeJSON(w, http.StatusCreated, importResponse{Cards: created, Dropped: dropped})
}

type sessionRequest struct {
	Tags           []string `json:"tags"`
	IncludeRetired bool     `json:"include_retired"`
	Order          string   `json:"order"`
}

type sessionResponse struct {
	SessionID string        `json:"session_id"`
	Cards     []domain.Card `json:"cards"`
}

// handleStartSession snapshots and orders a card set for one study session.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}

	policy, err := review.ParsePolicy(req.Order)
	if err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.engine.StartSession(review.SessionOptions{
		Tags:           req.Tags,
		IncludeRetired: req.IncludeRetired,
		Order:          policy,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	slog.Info("Started session", "session_id", sess.ID(), "cards", len(sess.Cards()), "order", policy)
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: sess.ID(), Cards: sess.Cards()})
}

func (s *Server) session(id string) (*review.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

type answerRequest struct {
	CardID  int64  `json:"card_id"`
	Outcome string `json:"outcome"`
}

type answerResponse struct {
	Card      domain.Card `json:"card"`
	Correct   int         `json:"correct"`
	Incorrect int         `json:"incorrect"`
	Remaining int         `json:"remaining"`
}

// handleSessionAnswer records an outcome for the session's current card.
func (s *Server) handleSessionAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, domain.ErrNotFound)
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		writeError(w, err)
		return
	}

	card, err := sess.Answer(req.CardID, outcome)
	if err != nil {
		writeError(w, err)
		return
	}

	sum := sess.Summary()
	writeJSON(w, http.StatusOK, answerResponse{
		Card:      card,
		Correct:   sum.Correct,
		Incorrect: sum.Incorrect,
		Remaining: sess.Remaining(),
	})
}

type summaryResponse struct {
	review.Summary
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// handleSessionSummary reports a session's running counters and elapsed time.
func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, domain.ErrNotFound)
		return
	}
	sum := sess.Summary()
	writeJSON(w, http.StatusOK, summaryResponse{
		Summary:        sum,
		ElapsedSeconds: sum.Elapsed.Seconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleShutdown asks the hosting process to drain and exit. The GUI sends
// this when the user quits so no orphan backend lingers.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
	select {
	case s.shutdown <- struct{}{}:
	default:
		// Already shutting down.
	}
}
