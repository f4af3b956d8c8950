package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"TradeLedger/internal/core"
	"TradeLedger/internal/event"
	"TradeLedger/internal/fault"
	"TradeLedger/internal/ingestion"
	"TradeLedger/internal/observability"
	"TradeLedger/internal/query"
	"TradeLedger/internal/state"
)

const maxBodyBytes = 1 << 20

// Server is the HTTP surface of the ledger. Command endpoints share the
// ingestion wire formats, so a producer can switch between NATS and HTTP
// without changing payloads. Read endpoints serve either the in-memory
// engine (strongly consistent) or the SQL projections (eventually
// consistent, marked by an as_of watermark).
type Server struct {
	engine  *core.Engine
	queries *query.Service
	health  *observability.HealthChecker
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewServer(
	engine *core.Engine,
	queries *query.Service,
	health *observability.HealthChecker,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		engine:  engine,
		queries: queries,
		health:  health,
		log:     log,
		metrics: metrics,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		// Command surface. One endpoint per command type; bodies are
		// the same JSON the NATS subjects carry.
		r.Post("/trades", s.command("CreateTrade"))
		r.Post("/executions", s.command("ExecuteTrade"))
		r.Post("/resets", s.command("RecordReset"))
		r.Post("/resets/verify", s.command("VerifyRate"))
		r.Post("/transfers", s.command("RecordTransfer"))
		r.Post("/transfers/settlement", s.command("Settlement"))
		r.Post("/terminations", s.command("TerminateTrade"))
		r.Post("/terminations/action", s.command("TerminationAction"))
		r.Post("/lifecycle", s.command("Lifecycle"))

		// Engine reads.
		r.Get("/trades/{tradeID}", s.getTrade)
		r.Get("/trades/{tradeID}/history", s.getHistory)
		r.Get("/trades/{tradeID}/transitions", s.getTransitions)
		r.Get("/trades/{tradeID}/events", s.getEvents)
		r.Get("/trades/{tradeID}/execution", s.getExecution)
		r.Get("/trades/{tradeID}/resets", s.getResets)
		r.Get("/trades/{tradeID}/transfers", s.getTransfers)
		r.Get("/trades/{tradeID}/termination", s.getTermination)
		r.Get("/events/{eventID}", s.getEvent)

		// Projection reads.
		r.Get("/trades", s.listTrades)
		r.Get("/trades/{tradeID}/status", s.getTradeStatus)
		r.Get("/trades/{tradeID}/cashflows", s.listCashflows)
		r.Get("/trades/{tradeID}/chain", s.verifyChain)
		r.Get("/cashflows/upcoming", s.upcomingCashflows)
	})

	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		if s.metrics == nil {
			return
		}
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.QueryRequests.WithLabelValues(pattern, strconv.Itoa(ww.Status())).Inc()
		s.metrics.QueryDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

// --- Command handlers ---

type commandResult struct {
	Operation string `json:"operation"`
	TradeID   string `json:"trade_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	State     string `json:"state,omitempty"`
}

func (s *Server) command(commandType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}

		cmd, err := ingestion.ParseCommand(commandType, body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		out, err := cmd.Apply(s.engine)
		if err != nil {
			s.log.Debug().Err(err).Str("command", cmd.Kind()).Msg("command rejected")
			s.writeError(w, statusFor(err), err.Error())
			return
		}

		res := commandResult{Operation: out.Operation}
		if out.Record != nil {
			res.EventID = out.Record.EventID
			res.TradeID = out.Record.TradeID
		}
		if out.Snapshot != nil {
			res.TradeID = out.Snapshot.TradeID
			res.State = out.Snapshot.State.String()
		}
		s.writeJSON(w, http.StatusOK, res)
	}
}

// --- Engine read handlers ---

// tradeDetail is the current snapshot plus the derived ages the snapshot
// itself cannot carry.
type tradeDetail struct {
	*state.Snapshot
	Age            string `json:"age"`
	TimeToMaturity string `json:"time_to_maturity"`
}

func (s *Server) getTrade(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "tradeID")
	snap, err := s.engine.CurrentSnapshot(tradeID)
	if err != nil {
		s.respond(w, nil, err)
		return
	}
	age, _ := s.engine.TradeAge(tradeID)
	ttm, _ := s.engine.TimeToMaturity(tradeID)
	s.writeJSON(w, http.StatusOK, tradeDetail{
		Snapshot:       snap,
		Age:            age.String(),
		TimeToMaturity: ttm.String(),
	})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.engine.History(chi.URLParam(r, "tradeID"))
	s.respond(w, hist, err)
}

func (s *Server) getTransitions(w http.ResponseWriter, r *http.Request) {
	trs, err := s.engine.Transitions(chi.URLParam(r, "tradeID"))
	s.respond(w, trs, err)
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	filter := event.ParseEventType(r.URL.Query().Get("type"))
	recs := s.engine.EventsForTrade(chi.URLParam(r, "tradeID"), filter)
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	data, err := s.engine.ExecutionForTrade(chi.URLParam(r, "tradeID"))
	s.respond(w, data, err)
}

func (s *Server) getResets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.ResetsForTrade(chi.URLParam(r, "tradeID")))
}

func (s *Server) getTransfers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.TransfersForTrade(chi.URLParam(r, "tradeID")))
}

func (s *Server) getTermination(w http.ResponseWriter, r *http.Request) {
	data, err := s.engine.TerminationForTrade(chi.URLParam(r, "tradeID"))
	s.respond(w, data, err)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.GetEvent(chi.URLParam(r, "eventID"))
	s.respond(w, rec, err)
}

// --- Projection read handlers ---

func (s *Server) listTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.queries.ListTrades(r.Context(), r.URL.Query().Get("state"))
	s.respond(w, trades, err)
}

func (s *Server) getTradeStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.queries.GetTradeStatus(r.Context(), chi.URLParam(r, "tradeID"))
	s.respond(w, status, err)
}

func (s *Server) listCashflows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.queries.ListCashflows(r.Context(), chi.URLParam(r, "tradeID"))
	s.respond(w, flows, err)
}

func (s *Server) verifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyChain(r.Context(), chi.URLParam(r, "tradeID"))
	s.respond(w, report, err)
}

func (s *Server) upcomingCashflows(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"), time.Now())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"), from.AddDate(0, 0, 30))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	flows, qerr := s.queries.UpcomingCashflows(r.Context(), from, to)
	s.respond(w, flows, qerr)
}

func parseDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return time.Parse("2006-01-02", s)
}

// --- Response plumbing ---

func (s *Server) respond(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fault.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, fault.ErrAlreadyExists),
		errors.Is(err, fault.ErrIllegalTransition),
		errors.Is(err, fault.ErrWrongLifecycleStage),
		errors.Is(err, fault.ErrAlreadyTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
