package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ingestion"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/query"
)

// HTTPServer serves the query API, the admin injection surface, the
// WebSocket event feed, health endpoints and Prometheus metrics.
type HTTPServer struct {
	server *http.Server
	addr   string
}

// ServerDeps holds the dependencies the HTTP handlers need.
type ServerDeps struct {
	QueryService  *query.QueryService
	AdminIngest   *ingestion.AdminIngestService
	HealthChecker *observability.HealthChecker
	Hub           *WSHub
}

func NewHTTPServer(addr string, deps *ServerDeps) *HTTPServer {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{deps: deps}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/accounts/{account}", h.getAccount)
		r.Get("/accounts/{account}/position", h.getPosition)
		r.Get("/accounts/{account}/activity", h.getActivity)
		r.Get("/fee-periods", h.getFeePeriods)
		r.Get("/protocol", h.getProtocolStats)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/integrity", h.verifyIntegrity)
			r.Post("/endow", h.postEndow)
			r.Post("/price", h.postPrice)
			r.Post("/issuer", h.postIssuer)
			r.Post("/freeze", h.postFreeze)
			r.Post("/escrow-credit", h.postEscrowCredit)
			r.Post("/param", h.postParam)
			r.Post("/reward-funding", h.postRewardFunding)
		})

		if deps.Hub != nil {
			r.Get("/ws", deps.Hub.HandleWS)
		}
	})

	if deps.HealthChecker != nil {
		r.Get("/healthz", deps.HealthChecker.LivenessHandler)
		r.Get("/readyz", deps.HealthChecker.ReadinessHandler)
	}
	r.Handle("/metrics", promhttp.Handler())

	return &HTTPServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		addr: addr,
	}
}

// Start serves until ctx is cancelled, then drains with a 10s grace period.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Println("INFO: HTTP server shutting down...")
		s.server.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type handlers struct {
	deps *ServerDeps
}

// --- query handlers ---

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	resp, err := h.deps.QueryService.GetAccount(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getPosition(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	resp, err := h.deps.QueryService.GetPosition(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getActivity(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), 50, 500)
	var before *int64
	if s := r.URL.Query().Get("before"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		before = &v
	}

	entries, err := h.deps.QueryService.GetActivity(r.Context(), account, limit, before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *handlers) getFeePeriods(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 20, 200)
	periods, err := h.deps.QueryService.GetFeePeriods(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"periods": periods})
}

func (h *handlers) getProtocolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.QueryService.GetProtocolStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- admin injection handlers ---
//
// These enqueue commands on the same channel NATS ingestion feeds; the
// core's authority checks still apply, so a bad caller key is accepted
// here and rejected at dispatch.

type endowRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (h *handlers) postEndow(w http.ResponseWriter, r *http.Request) {
	var req endowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	caller, err := uuid.Parse(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller")
		return
	}
	to, err := uuid.Parse(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to account")
		return
	}
	amount, err := fixed.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := h.deps.AdminIngest.InjectEndow(r.Context(), caller, to, amount); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAccepted(w)
}

type priceRequest struct {
	Caller  string `json:"caller"`
	Price   string `json:"price"`
	RoundID int64  `json:"round_id"`
}

func (h *handlers) postPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	caller, err := uuid.Parse(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller")
		return
	}
	price, err := fixed.Parse(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}

	if err := h.deps.AdminIngest.InjectPrice(r.Context(), caller, price, req.RoundID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAccepted(w)
}

type issuerRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Allowed bool   `json:"allowed"`
}

func (h *handlers) postIssuer(w http.ResponseWriter, r *http.Request) {
	var req issuerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	caller, account, err := parseCallerAccount(req.Caller, req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.deps.AdminIngest.InjectSetIssuer(r.Context(), caller, account, req.Allowed); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAccepted(w)
}

type freezeRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Frozen  bool   `json:"frozen"`
}

func (h *handlers) postFreeze(w http.ResponseWriter, r *http.Request) {
	var req freezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	caller, account, err := parseCallerAccount(req.Caller, req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.deps.AdminIngest.InjectFreeze(r.Context(), caller, account, req.Frozen); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAccepted(w)
}

type escrowCreditRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (h *handlers) postEscrowCredit(w http.ResponseWriter, r *http.Request) {
	var req escrowCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	caller, account, err := parseCallerAccount(req.Caller, req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := fixed.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := h.deps.AdminIngest.InjectEscrowCredit(r.Context(), caller, account, amount); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAccepted(w)
}

type paramRequest struct {
	Caller   string `json:"caller"`
	Param    string `json:"param"`
	Value    string `json:"value,omitempty"`
	Duration int64  `json:"duration,omitempty"`
	Key      string `json:"key,omitempty"`
}

func (h *handlers) postParam(w http.ResponseWriter, r *http.Request) {
	var req paramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	caller, err := uuid.Parse(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller")
		return
	}

	value := fixed.Zero()
	if req.Value != "" {
		if value, err = fixed.Parse(req.Value); err != nil {
			writeError(w, http.StatusBadRequest, "invalid value")
			return
		}
	}
	var key uuid.UUID
	if req.Key != "" {
		if key, err = uuid.Parse(req.Key); err != nil {
			writeError(w, http.StatusBadRequest, "invalid key")
			return
		}
	}

	if err := h.deps.AdminIngest.InjectParamUpdate(
		r.Context(), caller, req.Param, value, req.Duration, key,
	); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAccepted(w)
}

type rewardFundingRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (h *handlers) postRewardFunding(w http.ResponseWriter, r *http.Request) {
	var req rewardFundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	caller, err := uuid.Parse(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller")
		return
	}
	amount, err := fixed.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := h.deps.AdminIngest.InjectRewardFunding(r.Context(), caller, amount); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAccepted(w)
}

// --- helpers ---

func parseCallerAccount(callerStr, accountStr string) (uuid.UUID, uuid.UUID, error) {
	caller, err := uuid.Parse(callerStr)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid caller")
	}
	account, err := uuid.Parse(accountStr)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid account")
	}
	return caller, account, nil
}

func parseLimit(s string, def, max int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeAccepted(w http.ResponseWriter) {
	// Commands are applied asynchronously; acceptance only means enqueued.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
