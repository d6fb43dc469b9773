package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coldbell/drift-gateway/internal/config"
	"github.com/coldbell/drift-gateway/internal/driftsdk"
	"github.com/coldbell/drift-gateway/internal/gatewaycore"
	"github.com/coldbell/drift-gateway/internal/journal"
	"github.com/coldbell/drift-gateway/internal/wallet"
)

// Service is the HTTP/WS server lifecycle (A3): it owns the listener and
// wires every inbound request to the gatewaycore components built in main.
// It holds no domain state of its own beyond what routing requires.
type Service struct {
	cfg    config.GatewayConfig
	logger *slog.Logger

	wallet      *wallet.Wallet
	cache       driftsdk.ProgramDataCache
	translator  *gatewaycore.Translator
	broadcaster *gatewaycore.Broadcaster
	renderer    *gatewaycore.Renderer
	store       *journal.Store

	allowAllOrigins  bool
	allowedOriginSet map[string]struct{}
}

// New builds the Service from already-constructed domain components. The
// RPC/Ws clients, wallet, fee oracle, translator, and broadcaster are
// assembled in cmd/gateway/main.go, following this codebase's convention of
// composing dependencies once at the top and threading them down explicitly.
func New(
	cfg config.GatewayConfig,
	logger *slog.Logger,
	w *wallet.Wallet,
	cache driftsdk.ProgramDataCache,
	translator *gatewaycore.Translator,
	broadcaster *gatewaycore.Broadcaster,
	renderer *gatewaycore.Renderer,
	store *journal.Store,
) *Service {
	allowAllOrigins := false
	allowedOriginSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAllOrigins = true
			continue
		}
		allowedOriginSet[trimmed] = struct{}{}
	}
	if len(allowedOriginSet) == 0 && !allowAllOrigins {
		allowAllOrigins = true
	}

	return &Service{
		cfg:              cfg,
		logger:           logger,
		wallet:           w,
		cache:            cache,
		translator:       translator,
		broadcaster:      broadcaster,
		renderer:         renderer,
		store:            store,
		allowAllOrigins:  allowAllOrigins,
		allowedOriginSet: allowedOriginSet,
	}
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if s.store == nil {
			return
		}
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close journal store", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v2/markets", s.handleMarkets)
	mux.HandleFunc("/v2/marketInfo/", s.handleMarketInfo)
	mux.HandleFunc("/v2/orders", s.handleOrders)
	mux.HandleFunc("/v2/orders/cancelAndPlace", s.handleCancelAndPlace)
	mux.HandleFunc("/v2/positions", s.handlePositions)
	mux.HandleFunc("/v2/positionInfo/", s.handlePositionInfo)
	mux.HandleFunc("/v2/balance", s.handleBalance)
	mux.HandleFunc("/v2/user/marginInfo", s.handleMarginInfo)
	mux.HandleFunc("/v2/leverage", s.handleLeverage)
	mux.HandleFunc("/v2/collateral", s.handleCollateral)
	mux.HandleFunc("/v2/marginRatio", s.handleSetMaxInitialMarginRatio)
	mux.HandleFunc("/v2/transactionEvent/", s.handleTransactionEvent)
	mux.HandleFunc("/ws", s.handleWebsocket)

	handler := s.withCORS(mux)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: s.cfg.KeepAliveTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("gateway http server started",
		"listen_addr", addr,
		"signer", s.wallet.Signer().String(),
		"authority", s.wallet.Authority().String(),
		"read_only", s.wallet.IsReadOnly(),
	)

	select {
	case <-ctx.Done():
		s.logger.Info("gateway http server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown gateway http server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

type healthResponse struct {
	OK bool `json:"ok"`
}

// errorResponse is the `{code, reason}` error shape mandated by §6.1.
type errorResponse struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	s.respondJSON(w, http.StatusOK, healthResponse{OK: true})
}

func (s *Service) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			allowed := s.allowAllOrigins
			if !allowed {
				_, allowed = s.allowedOriginSet[origin]
			}

			if allowed {
				if s.allowAllOrigins {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "300")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) isOriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	if s.allowAllOrigins {
		return true
	}
	_, ok := s.allowedOriginSet[origin]
	return ok
}

// txOptionsFromQuery parses the query parameters common to every mutating
// endpoint per §6.1: subAccountId, computeUnitPrice, computeUnitLimit, ttl.
func txOptionsFromQuery(r *http.Request) (gatewaycore.TxOptions, error) {
	opts := gatewaycore.TxOptions{SubAccountID: 0}

	if raw := strings.TrimSpace(r.URL.Query().Get("subAccountId")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 16)
		if err != nil {
			return opts, fmt.Errorf("invalid subAccountId: %w", err)
		}
		opts.SubAccountID = uint16(v)
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("computeUnitPrice")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid computeUnitPrice: %w", err)
		}
		opts.ComputeUnitPrice = &v
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("computeUnitLimit")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return opts, fmt.Errorf("invalid computeUnitLimit: %w", err)
		}
		limit := uint32(v)
		opts.ComputeUnitLimit = &limit
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("ttl")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid ttl: %w", err)
		}
		opts.TTLSeconds = &v
	}
	return opts, nil
}

func ttlFromOptions(opts gatewaycore.TxOptions, fallback time.Duration) time.Duration {
	if opts.TTLSeconds == nil {
		return fallback
	}
	return time.Duration(*opts.TTLSeconds) * time.Second
}

func (s *Service) respondMethodNotAllowed(w http.ResponseWriter) {
	s.respondBadRequest(w, "method not allowed")
}

func (s *Service) respondBadRequest(w http.ResponseWriter, reason string) {
	s.respondJSON(w, http.StatusBadRequest, errorResponse{Code: http.StatusBadRequest, Reason: reason})
}

// respondErr renders any gatewaycore error via HTTPStatusAndCode.
func (s *Service) respondErr(w http.ResponseWriter, err error) {
	status, code, reason := gatewaycore.HTTPStatusAndCode(err)
	s.respondJSON(w, status, errorResponse{Code: code, Reason: reason})
}

func (s *Service) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "err", err)
	}
}

func decodeJSONBody(r *http.Request, destination any) error {
	defer func() { _ = r.Body.Close() }()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(destination); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
