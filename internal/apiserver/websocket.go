package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coldbell/drift-gateway/internal/gatewaycore"
)

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

const (
	websocketReadDeadline = 90 * time.Second
	websocketPingInterval = 30 * time.Second
)

// websocketRequest is a client→server message per §6.2.
type websocketRequest struct {
	Method       string `json:"method"`
	SubAccountID uint8  `json:"subAccountId"`
}

// websocketEvent is a server→client delivered event.
type websocketEvent struct {
	Channel      string                  `json:"channel"`
	SubAccountID uint8                   `json:"subAccountId"`
	Data         gatewaycore.AccountEvent `json:"data"`
}

type websocketError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// handleWebsocket upgrades the connection and runs the event-driven
// subscribe/unsubscribe/fan-out model of §4.5 and §6.2: a per-connection
// SubscriptionTable drives one goroutine per subscribed sub-account, and
// this handler's write loop drains the table's shared outbound queue while
// a read loop (mirroring this codebase's existing ping/pong convention)
// parses subscribe/unsubscribe requests.
func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	upgrader := websocketUpgrader
	upgrader.CheckOrigin = func(req *http.Request) bool {
		return s.isOriginAllowed(strings.TrimSpace(req.Header.Get("Origin")))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table, out := gatewaycore.NewSubscriptionTable(s.cache, s.logger)
	if s.store != nil {
		table.WithEventRecorder(s.store)
	}
	defer table.CloseAll()

	readErrCh := make(chan error, 1)
	go s.websocketReadLoop(ctx, conn, table, readErrCh)

	ticker := time.NewTicker(websocketPingInterval)
	defer ticker.Stop()

	conn.SetReadLimit(1024 * 1024)

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErrCh:
			if err != nil {
				s.logger.Debug("websocket read loop ended", "err", err)
			}
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case msg, ok := <-out:
			if !ok {
				return
			}
			if err := conn.WriteJSON(websocketEvent{Channel: msg.Channel, SubAccountID: msg.SubAccountID, Data: msg.Data}); err != nil {
				return
			}
		}
	}
}

func (s *Service) websocketReadLoop(ctx context.Context, conn *websocket.Conn, table *gatewaycore.SubscriptionTable, readErrCh chan<- error) {
	_ = conn.SetReadDeadline(time.Now().Add(websocketReadDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(websocketReadDeadline))
	})

	for {
		select {
		case <-ctx.Done():
			readErrCh <- nil
			return
		default:
		}

		var req websocketRequest
		if err := conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.writeWebsocketError(conn, gatewaycore.NewBadRequest("invalid request: %v", err))
				continue
			}
			readErrCh <- err
			return
		}

		req.Method = strings.ToLower(strings.TrimSpace(req.Method))
		switch req.Method {
		case "subscribe":
			account := s.wallet.SubAccount(uint16(req.SubAccountID))
			if err := table.Subscribe(ctx, req.SubAccountID, account, account); err != nil {
				s.writeWebsocketError(conn, err)
			}
		case "unsubscribe":
			table.Unsubscribe(req.SubAccountID)
		default:
			s.writeWebsocketError(conn, gatewaycore.NewBadRequest("unknown method %q", req.Method))
		}
	}
}

func (s *Service) writeWebsocketError(conn *websocket.Conn, err error) {
	_, _, reason := gatewaycore.HTTPStatusAndCode(err)
	payload, marshalErr := json.Marshal(websocketError{Error: "bad request", Reason: reason})
	if marshalErr != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}
