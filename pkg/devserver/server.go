// Package devserver is a local stand-in for the AIRA backend. It serves the
// same JSON endpoints with canned answers so the client can be run and
// tested without the real service.
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	RootMessage      = "🌱 API AIRA - Amazônia e preservação está rodando!"
	RootDocs         = "/docs para explorar os endpoints"
	NoAlertsSummary  = "Nenhum alerta encontrado no período."
	SimulatedFailure = "falha simulada"
	defaultDays      = 7
	maxBodySize      = 1 << 20
)

// Turn is one entry of the chat history kept by the server.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Responder produces the answer to question given the history so far.
type Responder func(ctx context.Context, history []Turn, question string) (string, error)

// AlertAnalyst produces the analysis of the alerts of the last days.
type AlertAnalyst func(ctx context.Context, days int) (string, error)

func DefaultResponder(_ context.Context, history []Turn, question string) (string, error) {
	asked := 0
	for _, t := range history {
		if t.Role == "user" {
			asked++
		}
	}
	return fmt.Sprintf("AIRA (dev) recebeu sua pergunta %d:\n%s", asked+1, strings.TrimSpace(question)), nil
}

func DefaultAlertAnalyst(_ context.Context, days int) (string, error) {
	return fmt.Sprintf("1) Resumo geral: %s\n2) Período analisado: %d dias", NoAlertsSummary, days), nil
}

type Server struct {
	router    *mux.Router
	responder Responder
	analyst   AlertAnalyst
	limiter   *rate.Limiter
	failRate  float64
	random    func() float64

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	failures prometheus.Counter

	mu      sync.Mutex
	history []Turn
}

type Option func(*Server)

func WithResponder(r Responder) Option {
	return func(s *Server) {
		s.responder = r
	}
}

func WithAlertAnalyst(a AlertAnalyst) Option {
	return func(s *Server) {
		s.analyst = a
	}
}

// WithRateLimit limits all requests to rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithFailRate makes a fraction of chat and alert requests fail.
func WithFailRate(f float64) Option {
	return func(s *Server) {
		s.failRate = f
	}
}

func WithRandom(f func() float64) Option {
	return func(s *Server) {
		s.random = f
	}
}

func New(options ...Option) *Server {
	s := &Server{
		responder: DefaultResponder,
		analyst:   DefaultAlertAnalyst,
		random:    rand.Float64,
		registry:  prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aira_devserver",
			Name:      "requests_total",
			Help:      "Requests served by route and status code.",
		}, []string{"route", "code"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aira_devserver",
			Name:      "simulated_failures_total",
			Help:      "Requests failed on purpose.",
		}),
	}
	for _, option := range options {
		option(s)
	}
	s.registry.MustRegister(s.requests, s.failures)

	r := mux.NewRouter()
	r.Use(s.limit)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet).Name("root")
	r.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost).Name("chat")
	r.HandleFunc("/analise-alertas", s.handleAlerts).Methods(http.MethodGet).Name("analise-alertas")
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusNotFound, map[string]string{"detail": "Not Found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusMethodNotAllowed, map[string]string{"detail": "Method Not Allowed"})
	})
	s.router = r

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// History returns a copy of the chat history.
func (s *Server) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && r.URL.Path != "/metrics" && !s.limiter.Allow() {
			s.writeJSON(w, r, http.StatusTooManyRequests, map[string]string{"detail": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) shouldFail() bool {
	if s.failRate <= 0 {
		return false
	}
	if s.random() < s.failRate {
		s.failures.Inc()
		return true
	}
	return false
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{
		"mensagem": RootMessage,
		"docs":     RootDocs,
	})
}

type chatRequest struct {
	Pergunta *string `json:"pergunta"`
}

type chatResponse struct {
	Pergunta string `json:"pergunta"`
	Resposta string `json:"resposta"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, r, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid json body"})
		return
	}
	if req.Pergunta == nil {
		s.writeJSON(w, r, http.StatusUnprocessableEntity, map[string]string{"detail": "field required: pergunta"})
		return
	}
	if s.shouldFail() {
		s.writeJSON(w, r, http.StatusInternalServerError, map[string]string{"detail": SimulatedFailure})
		return
	}

	question := *req.Pergunta
	s.mu.Lock()
	history := append([]Turn(nil), s.history...)
	s.mu.Unlock()

	answer, err := s.responder(r.Context(), history, question)
	if err != nil {
		log.Warn().Err(err).Msg("dev responder failed")
		s.writeJSON(w, r, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	s.history = append(s.history, Turn{Role: "user", Content: question}, Turn{Role: "assistant", Content: answer})
	s.mu.Unlock()

	s.writeJSON(w, r, http.StatusOK, chatResponse{Pergunta: question, Resposta: answer})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	days := defaultDays
	if v := r.URL.Query().Get("dias"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeJSON(w, r, http.StatusUnprocessableEntity, map[string]string{"detail": "dias must be an integer"})
			return
		}
		days = n
	}

	// failures are reported in the body with a 200, like the real backend
	if s.shouldFail() {
		s.writeJSON(w, r, http.StatusOK, map[string]string{"erro": SimulatedFailure})
		return
	}
	analysis, err := s.analyst(r.Context(), days)
	if err != nil {
		s.writeJSON(w, r, http.StatusOK, map[string]string{"erro": err.Error()})
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{"dias": days, "analise": analysis})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	route := "unknown"
	if cr := mux.CurrentRoute(r); cr != nil && cr.GetName() != "" {
		route = cr.GetName()
	}
	s.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("could not write response")
	}
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving dev backend")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "dev server failed")
	}
}
