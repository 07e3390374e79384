package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"income-predictor/internal/features"
	"income-predictor/internal/pipeline"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// StreamResponse answers one record sent over /ws/predict. Seq counts the
// records received on the connection, starting at 1.
type StreamResponse struct {
	Seq        int              `json:"seq"`
	Prediction *pipeline.Result `json:"prediction,omitempty"`
	Error      *ErrorResponse   `json:"error,omitempty"`
}

// handleStream serves predictions over a WebSocket: every text message is
// a record and gets exactly one StreamResponse.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.WSConnectionsAdd(1)
		defer s.cfg.Metrics.WSConnectionsAdd(-1)
	}
	log.Debug().Str("remote", r.RemoteAddr).Msg("Prediction stream opened")

	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go keepAlive(ctx, conn)

	for seq := 1; ; seq++ {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("Prediction stream closed unexpectedly")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		resp := s.streamOne(ctx, seq, msg)
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(resp); err != nil {
			log.Warn().Err(err).Msg("Failed to write stream response")
			return
		}
	}
}

func (s *Server) streamOne(ctx context.Context, seq int, msg []byte) StreamResponse {
	var rec features.Record
	if err := json.Unmarshal(msg, &rec); err != nil {
		return StreamResponse{Seq: seq, Error: &ErrorResponse{
			Error:  fmt.Sprintf("invalid record: %v", err),
			Reason: "bad_request",
		}}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.predict(ctx, NormalizeRecord(rec))
	if err != nil {
		resp := newErrorResponse(err)
		return StreamResponse{Seq: seq, Error: &resp}
	}
	return StreamResponse{Seq: seq, Prediction: res}
}

// keepAlive pings the peer until ctx is done. WriteControl may run
// concurrently with the writer of the read loop.
func keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
				log.Debug().Err(err).Msg("Stream ping failed")
				return
			}
		}
	}
}
