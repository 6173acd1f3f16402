package websocket

import (
	"context"
	"encoding/json"
	"time"

	"coi-notes-be/internal/dto"
	"coi-notes-be/internal/pkg/apperror"
	"coi-notes-be/internal/pkg/logger"
	"coi-notes-be/internal/service"
	"coi-notes-be/pkg/stream"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const wsModule = "WebSocket"

// ServeChat runs one chat turn over an upgraded connection. The first
// client message is the request; the server closes after the terminal record.
func ServeChat(conn *websocket.Conn, svc service.IChatStreamService, userId uuid.UUID, log logger.ILogger) {
	transport := NewTransport(conn)
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	_, payload, err := conn.ReadMessage()
	if err != nil {
		log.Warn(wsModule, "No chat request received", map[string]interface{}{
			"user_id": userId,
			"error":   err.Error(),
		})
		return
	}

	var req dto.StreamChatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		fail(transport, apperror.Wrap(apperror.CodeInvalidInput, "Request must be a JSON chat request", err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go readPump(conn, cancel)
	go pingPump(ctx, transport)

	chat, err := svc.Prepare(ctx, userId, &req)
	if err != nil {
		fail(transport, apperror.As(err))
		return
	}

	if err := svc.Run(ctx, chat, transport); err != nil {
		log.Warn(wsModule, "Chat turn ended with error", map[string]interface{}{
			"user_id":    userId,
			"project_id": req.ProjectId,
			"error":      err.Error(),
		})
	}
}

// fail reports an error that happened before streaming as the only record.
func fail(transport *Transport, appErr *apperror.AppError) {
	message := appErr.Message
	if appErr.Code == apperror.CodeInternal {
		message = "Internal server error"
	}
	_ = stream.NewMultiplexer(transport).Fail(string(appErr.Code), message)
}

// readPump only watches for the peer going away; clients send nothing
// after the request.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func pingPump(ctx context.Context, transport *Transport) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := transport.ping(); err != nil {
				return
			}
		}
	}
}
