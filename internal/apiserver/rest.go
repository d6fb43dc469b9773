package apiserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/drift-gateway/internal/gatewaycore"
	"github.com/coldbell/drift-gateway/internal/journal"
)

// broadcastAndRespond submits tx per the C4 state machine: the primary send
// happens synchronously on the request's own context, while confirmation
// runs detached on context.Background() so a client disconnect never aborts
// it.
func (s *Service) broadcastAndRespond(w http.ResponseWriter, r *http.Request, tx *solana.Transaction, opts gatewaycore.TxOptions) {
	ttl := ttlFromOptions(opts, 0)
	sig, err := s.broadcaster.Broadcast(r.Context(), context.Background(), tx, ttl)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, gatewaycore.TxResponse{Tx: sig.String()})
}

func (s *Service) handleMarkets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	markets, err := s.renderer.Markets(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, markets)
}

func (s *Service) handleMarketInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	idx, err := pathUint16(r.URL.Path, "/v2/marketInfo/")
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	detail, err := s.renderer.MarketInfo(r.Context(), idx)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Service) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListOrders(w, r)
	case http.MethodPost:
		s.handlePlaceOrders(w, r)
	case http.MethodPatch:
		s.handleModifyOrders(w, r)
	case http.MethodDelete:
		s.handleCancelOrders(w, r)
	default:
		s.respondMethodNotAllowed(w)
	}
}

func (s *Service) handleListOrders(w http.ResponseWriter, r *http.Request) {
	opts, err := txOptionsFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	market, err := optionalMarketFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}

	orders, err := s.renderer.Orders(r.Context(), opts.SubAccountID, market)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, orders)
}

func (s *Service) handlePlaceOrders(w http.ResponseWriter, r *http.Request) {
	var req gatewaycore.PlaceOrdersRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	opts, err := txOptionsFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}

	tx, err := s.translator.PlaceOrders(r.Context(), req, opts)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.broadcastAndRespond(w, r, tx, opts)
}

func (s *Service) handleModifyOrders(w http.ResponseWriter, r *http.Request) {
	var req gatewaycore.ModifyOrdersRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	opts, err := txOptionsFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}

	tx, err := s.translator.ModifyOrders(r.Context(), req, opts)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.broadcastAndRespond(w, r, tx, opts)
}

func (s *Service) handleCancelOrders(w http.ResponseWriter, r *http.Request) {
	var req gatewaycore.CancelOrdersRequest
	if r.ContentLength > 0 {
		if err := decodeJSONBody(r, &req); err != nil {
			s.respondBadRequest(w, err.Error())
			return
		}
	}
	opts, err := txOptionsFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}

	tx, err := s.translator.CancelOrders(r.Context(), req, opts)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.broadcastAndRespond(w, r, tx, opts)
}

func (s *Service) handleCancelAndPlace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}
	var req gatewaycore.CancelAndPlaceRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	opts, err := txOptionsFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}

	tx, err := s.translator.CancelAndPlace(r.Context(), req, opts)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.broadcastAndRespond(w, r, tx, opts)
}

func (s *Service) handleSetMaxInitialMarginRatio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}
	var req gatewaycore.SetMaxInitialMarginRatioRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	opts, err := txOptionsFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}

	tx, err := s.translator.SetMaxInitialMarginRatio(r.Context(), req, opts)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.broadcastAndRespond(w, r, tx, opts)
}

func (s *Service) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	opts, err := txOptionsFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	market, err := optionalMarketFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}

	positions, err := s.renderer.Positions(r.Context(), opts.SubAccountID, market)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, positions)
}

func (s *Service) handlePositionInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	idx, err := pathUint16(r.URL.Path, "/v2/positionInfo/")
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	opts, err := txOptionsFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}

	info, err := s.renderer.PositionInfo(r.Context(), opts.SubAccountID, idx)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Service) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	balance, err := s.renderer.Balance(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, balance)
}

func (s *Service) handleMarginInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	opts, err := txOptionsFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	info, err := s.renderer.MarginInfo(r.Context(), opts.SubAccountID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Service) handleLeverage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	opts, err := txOptionsFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	leverage, err := s.renderer.Leverage(r.Context(), opts.SubAccountID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, leverage)
}

func (s *Service) handleCollateral(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	opts, err := txOptionsFromQuery(r)
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	collateral, err := s.renderer.Collateral(r.Context(), opts.SubAccountID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, collateral)
}

// handleTransactionEvent renders GET /transactionEvent/{sig}: the journaled
// events for a signature. It reads only the event journal: with journaling
// disabled, or with no events recorded for the signature, it answers
// TxNotFound (404); a failed journal read is an Sdk error (500).
func (s *Service) handleTransactionEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	sig := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v2/transactionEvent/"))
	if sig == "" {
		s.respondBadRequest(w, "signature is required")
		return
	}

	if s.store == nil {
		s.respondErr(w, &gatewaycore.TxNotFound{Signature: sig})
		return
	}

	events, err := s.store.ForSignature(r.Context(), sig)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			s.respondErr(w, &gatewaycore.TxNotFound{Signature: sig})
		} else {
			s.respondErr(w, gatewaycore.WrapSdk(err))
		}
		return
	}

	s.respondJSON(w, http.StatusOK, gatewaycore.TransactionEventView{Events: events, Success: true})
}

func pathUint16(path, prefix string) (uint16, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(path, prefix))
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func optionalMarketFromQuery(r *http.Request) (*gatewaycore.MarketRef, error) {
	marketType := strings.TrimSpace(r.URL.Query().Get("marketType"))
	marketIndex := strings.TrimSpace(r.URL.Query().Get("marketIndex"))
	if marketType == "" && marketIndex == "" {
		return nil, nil
	}
	idx, err := strconv.ParseUint(marketIndex, 10, 16)
	if err != nil {
		return nil, err
	}
	return &gatewaycore.MarketRef{MarketIndex: uint16(idx), MarketType: marketType}, nil
}
