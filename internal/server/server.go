// Package server exposes the kernel over HTTP and streams thoughts to
// websocket clients.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/jsonx"
	"github.com/affective-thought-kernel/internal/kernel"
	"github.com/affective-thought-kernel/internal/selfmod"
	"github.com/affective-thought-kernel/internal/thought"
	"github.com/affective-thought-kernel/internal/thought/journal"
	"github.com/affective-thought-kernel/internal/thought/search"
)

const (
	defaultThoughtLimit = 50
	maxThoughtLimit     = 500
	maxBodyBytes        = 1 << 20
)

// Config controls the HTTP surface.
type Config struct {
	AllowedOrigins []string
	// WriteWait bounds each websocket write.
	WriteWait    time.Duration
	PingInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		WriteWait:      10 * time.Second,
		PingInterval:   30 * time.Second,
	}
}

// Server provides HTTP and WebSocket endpoints for the kernel
type Server struct {
	kernel   *kernel.Kernel
	config   Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
	auth     *Authenticator
}

// New creates a new HTTP server for the kernel
func New(k *kernel.Kernel, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	s := &Server{
		kernel: k,
		config: cfg,
		logger: logger.Named("server"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// WithAuth requires a valid bearer token on every route except /health.
func (s *Server) WithAuth(a *Authenticator) *Server {
	s.auth = a
	return s
}

func (s *Server) protect(h http.Handler) http.Handler {
	if s.auth == nil {
		return h
	}
	return s.auth.Middleware(h)
}

// SetupRoutes configures the HTTP routes
func (s *Server) SetupRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.protect, handlers.CompressHandler)

	api.HandleFunc("/activity", s.handleActivity).Methods("POST")
	api.HandleFunc("/messages", s.handleMessage).Methods("POST")
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/questions/resolve", s.handleResolveQuestion).Methods("POST")
	api.HandleFunc("/people/{id}/model", s.handleForgetPerson).Methods("DELETE")

	api.HandleFunc("/thoughts", s.handleListThoughts).Methods("GET")
	api.HandleFunc("/thoughts/generate", s.handleGenerateThought).Methods("POST")
	api.HandleFunc("/thoughts/search", s.handleSearchThoughts).Methods("GET")

	api.HandleFunc("/scheduler/start", s.handleSchedulerStart).Methods("POST")
	api.HandleFunc("/scheduler/stop", s.handleSchedulerStop).Methods("POST")
	api.HandleFunc("/scheduler/enabled", s.handleSchedulerEnabled).Methods("POST")

	api.HandleFunc("/proposals", s.handleListProposals).Methods("GET")
	api.HandleFunc("/proposals/{id}/accept", s.handleAcceptProposal).Methods("POST")
	api.HandleFunc("/proposals/{id}/revert", s.handleRevertProposal).Methods("POST")

	r.Handle("/ws/thoughts", s.protect(http.HandlerFunc(s.handleThoughtStream)))
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		pathTemplate, _ := route.GetPathTemplate()
		methods, _ := route.GetMethods()
		s.logger.Debug("Route registered", zap.String("path", pathTemplate), zap.Strings("methods", methods))
		return nil
	})
}

// Handler returns the routed handler wrapped with CORS, access logging and
// panic recovery.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	s.SetupRoutes(router)

	stdLog := zap.NewStdLog(s.logger.Named("http"))
	cors := handlers.CORS(
		handlers.AllowedOrigins(s.config.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(stdLog))(
		cors(handlers.CombinedLoggingHandler(stdLog.Writer(), router)),
	)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"scheduler": string(s.kernel.Scheduler().State()),
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	s.kernel.RecordActivity()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg kernel.Message
	if err := decodeJSON(w, r, &msg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg.PersonID == "" {
		msg.PersonID = Subject(r.Context())
	}

	out, err := s.kernel.HandleMessage(r.Context(), msg)
	switch {
	case errors.Is(err, kernel.ErrMissingPerson), errors.Is(err, kernel.ErrInvalidInteraction):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.logger.Error("Message handling failed", zap.Error(err))
		http.Error(w, "Message handling failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kernel.State())
}

func (s *Server) handleResolveQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}
	if !s.kernel.ResolveQuestion(req.Question) {
		http.Error(w, "Question not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.kernel.Core().Snapshot().Existential)
}

func (s *Server) handleForgetPerson(w http.ResponseWriter, r *http.Request) {
	s.kernel.ForgetPerson(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// ThoughtsResponse is the body of GET /api/thoughts.
type ThoughtsResponse struct {
	Thoughts      []thought.Thought `json:"thoughts"`
	TotalThoughts int               `json:"total_thoughts"`
	Summaries     []journal.Summary `json:"dreams_summary"`
}

func (s *Server) handleListThoughts(w http.ResponseWriter, r *http.Request) {
	limit := defaultThoughtLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxThoughtLimit)
	}

	st := s.kernel.Journal().State()
	writeJSON(w, http.StatusOK, ThoughtsResponse{
		Thoughts:      s.kernel.Journal().Recent(limit),
		TotalThoughts: st.TotalThoughts,
		Summaries:     st.DreamsSummary,
	})
}

func (s *Server) handleSearchThoughts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sq := search.Query{
		Text:    q.Get("q"),
		Type:    thought.Type(q.Get("type")),
		Emotion: q.Get("emotion"),
		Limit:   10,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		sq.Limit = min(n, maxThoughtLimit)
	}

	hits, err := s.kernel.Search().Search(r.Context(), sq)
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	case err != nil:
		s.logger.Error("Thought search failed", zap.Error(err))
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (s *Server) handleGenerateThought(w http.ResponseWriter, r *http.Request) {
	err := s.kernel.TriggerThought()
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "thinking"})
	case errors.Is(err, thought.ErrThoughtInFlight):
		http.Error(w, "A thought is already in flight", http.StatusConflict)
	case errors.Is(err, thought.ErrSchedulerStopped):
		http.Error(w, "Scheduler is stopped", http.StatusConflict)
	case errors.Is(err, kernel.ErrNotRunning):
		http.Error(w, "Kernel is not running", http.StatusServiceUnavailable)
	default:
		s.logger.Error("Trigger thought failed", zap.Error(err))
		http.Error(w, "Failed to start thought", http.StatusInternalServerError)
	}
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	if err := s.kernel.StartScheduler(); err != nil {
		switch {
		case errors.Is(err, thought.ErrAlreadyStarted):
			http.Error(w, "Scheduler already running", http.StatusConflict)
		case errors.Is(err, kernel.ErrNotRunning):
			http.Error(w, "Kernel is not running", http.StatusServiceUnavailable)
		default:
			http.Error(w, "Failed to start scheduler", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, s.kernel.Scheduler().Stats())
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	s.kernel.Scheduler().Stop()
	writeJSON(w, http.StatusOK, s.kernel.Scheduler().Stats())
}

func (s *Server) handleSchedulerEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Enabled == nil {
		http.Error(w, "enabled is required", http.StatusBadRequest)
		return
	}
	s.kernel.Scheduler().SetEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, s.kernel.Scheduler().Stats())
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"proposals": s.kernel.Proposer().List(),
		"pending":   s.kernel.Proposer().Pending(),
	})
}

func (s *Server) handleAcceptProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.kernel.Proposer().Accept(mux.Vars(r)["id"])
	s.writeProposalResult(w, p, err)
}

func (s *Server) handleRevertProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.kernel.Proposer().Revert(mux.Vars(r)["id"])
	s.writeProposalResult(w, p, err)
}

func (s *Server) writeProposalResult(w http.ResponseWriter, p selfmod.Proposal, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, p)
	case errors.Is(err, selfmod.ErrProposalNotFound):
		http.Error(w, "Proposal not found", http.StatusNotFound)
	case errors.Is(err, selfmod.ErrInvalidStatus):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("Proposal update failed", zap.Error(err))
		http.Error(w, "Proposal update failed", http.StatusInternalServerError)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return jsonx.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	jsonx.NewEncoder(w).Encode(v)
}
