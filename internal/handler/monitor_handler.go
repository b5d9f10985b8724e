package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/middleware"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/response"
	"github.com/stemsi/examflow/internal/service"
	"github.com/stemsi/examflow/internal/validator"
	ws "github.com/stemsi/examflow/internal/websocket"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second // a slow listing must not hold the upgrade
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients (cmd/monitor) send no Origin.
				return true
			}
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams a test's attempt events to its teacher.
type MonitorHandler struct {
	testService    *service.TestService
	attemptService *service.AttemptService
	monitorService *service.MonitorService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	testService *service.TestService,
	attemptService *service.AttemptService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
	allowedOrigins []string,
) *MonitorHandler {
	return &MonitorHandler{
		testService:    testService,
		attemptService: attemptService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /ws/tests/:testId/monitor
// Sends a snapshot of the test's attempts, then forwards every published
// attempt event until the teacher disconnects.
func (h *MonitorHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	testID, ok := validator.ParamID(c, "testId")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	if _, err := h.testService.Authorize(c.Request.Context(), testID, claims.UserID); err != nil {
		fail(c, h.log, err)
		return
	}
	if !h.monitorService.Enabled() {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrMonitorOffline)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int64("teacher_id", claims.UserID).
		Int64("test_id", testID).
		Logger()

	// The request context is not cancelled once the connection is hijacked;
	// readLoop cancels instead.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := h.monitorService.Subscribe(ctx, testID)
	defer pubsub.Close()

	if err := h.sendSnapshot(ctx, conn, testID); err != nil {
		wsLog.Warn().Err(err).Msg("Failed to send monitor snapshot")
		return
	}

	pings := make(chan struct{}, 1)
	go h.readLoop(conn, wsLog, cancel, pings)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	wsLog.Info().Msg("Teacher attached to live monitor")
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			wsLog.Info().Msg("Teacher detached from live monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Published payloads are already AttemptMessage JSON.
			if err := ws.WriteRaw(conn, []byte(msg.Payload)); err != nil {
				wsLog.Debug().Err(err).Msg("Monitor write failed")
				return
			}

		case <-pings:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}

		case <-keepAlive.C:
			if err := ws.WriteTyped(conn, ws.PingMessage{Event: ws.EventPing}); err != nil {
				return
			}
		}
	}
}

func (h *MonitorHandler) sendSnapshot(ctx context.Context, conn *websocket.Conn, testID int64) error {
	fetchCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	rows, err := h.attemptService.TestResults(fetchCtx, testID)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []model.TestResultRow{}
	}
	return ws.WriteTyped(conn, ws.SnapshotMessage{Event: ws.EventSnapshot, TestID: testID, Results: rows})
}

// readLoop is the only reader on conn. It answers pings through the writer
// loop and cancels the stream when the peer goes away.
func (h *MonitorHandler) readLoop(conn *websocket.Conn, wsLog zerolog.Logger, cancel context.CancelFunc, pings chan<- struct{}) {
	defer cancel()
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}
		switch msg.Action {
		case ws.ActionPing:
			select {
			case pings <- struct{}{}:
			default:
			}
		default:
			wsLog.Debug().Str("action", string(msg.Action)).Msg("Ignoring unknown action")
		}
	}
}
