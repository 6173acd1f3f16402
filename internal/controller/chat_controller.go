package controller

import (
	"bufio"
	"context"

	"coi-notes-be/internal/dto"
	"coi-notes-be/internal/pkg/logger"
	"coi-notes-be/internal/pkg/serverutils"
	"coi-notes-be/internal/service"
	"coi-notes-be/internal/websocket"
	"coi-notes-be/pkg/stream"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const HeaderStreamProtocol = "X-Stream-Protocol"

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Stream(ctx *fiber.Ctx) error
	QuickCreate(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatStreamService
	jwtSecret   string
	logger      logger.ILogger
}

func NewChatController(chatService service.IChatStreamService, jwtSecret string, log logger.ILogger) IChatController {
	return &chatController{
		chatService: chatService,
		jwtSecret:   jwtSecret,
		logger:      log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	auth := serverutils.JwtMiddleware(c.jwtSecret)

	h := r.Group("/chat/v1")
	h.Use(auth)
	h.Post("stream", c.Stream)
	h.Get("ws", c.upgradeOnly, fiberws.New(c.serveWs))

	p := r.Group("/project/v1")
	p.Use(auth)
	p.Post("quick-create", c.QuickCreate)
}

func (c *chatController) Stream(ctx *fiber.Ctx) error {
	userId, err := callerId(ctx)
	if err != nil {
		return err
	}

	var req dto.StreamChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	chat, err := c.chatService.Prepare(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}
	return c.stream(ctx, chat)
}

func (c *chatController) QuickCreate(ctx *fiber.Ctx) error {
	userId, err := callerId(ctx)
	if err != nil {
		return err
	}

	var req dto.QuickCreateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	chat, err := c.chatService.PrepareQuickCreate(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}
	return c.stream(ctx, chat)
}

// stream hands the prepared turn to the body writer. The fiber context is
// gone once the handler returns, so the pipeline gets a detached one.
func (c *chatController) stream(ctx *fiber.Ctx, chat *service.PreparedChat) error {
	runCtx := context.WithoutCancel(ctx.UserContext())

	ctx.Set(fiber.HeaderContentType, stream.ContentType)
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set("X-Accel-Buffering", "no")
	ctx.Set(HeaderStreamProtocol, stream.ProtocolName)
	ctx.Status(fiber.StatusOK)

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// errors are already reported on the stream and logged by the service
		_ = c.chatService.Run(runCtx, chat, w)
		_ = w.Flush()
	})
	return nil
}

func (c *chatController) upgradeOnly(ctx *fiber.Ctx) error {
	if fiberws.IsWebSocketUpgrade(ctx) {
		return ctx.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (c *chatController) serveWs(conn *fiberws.Conn) {
	userIdStr, _ := conn.Locals("user_id").(string)
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return
	}
	websocket.ServeChat(conn, c.chatService, userId, c.logger)
}

func callerId(ctx *fiber.Ctx) (uuid.UUID, error) {
	userIdStr, _ := ctx.Locals("user_id").(string)
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid caller")
	}
	return userId, nil
}
