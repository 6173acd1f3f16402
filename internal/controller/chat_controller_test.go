package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coi-notes-be/internal/constant"
	"coi-notes-be/internal/dto"
	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/pkg/apperror"
	"coi-notes-be/internal/pkg/logger"
	"coi-notes-be/internal/pkg/serverutils"
	"coi-notes-be/internal/service"
	"coi-notes-be/pkg/stream"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type stubChatService struct {
	prepareErr error
}

func (s *stubChatService) Prepare(_ context.Context, userId uuid.UUID, req *dto.StreamChatRequest) (*service.PreparedChat, error) {
	if s.prepareErr != nil {
		return nil, s.prepareErr
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return nil, err
	}
	return &service.PreparedChat{
		UserId:  userId,
		Project: &entity.Project{Id: req.ProjectId, UserId: userId},
		Message: req.Message,
	}, nil
}

func (s *stubChatService) PrepareQuickCreate(_ context.Context, userId uuid.UUID, req *dto.QuickCreateRequest) (*service.PreparedChat, error) {
	return &service.PreparedChat{
		UserId:  userId,
		Project: &entity.Project{Id: uuid.New(), UserId: userId, Title: "New"},
		Created: true,
		Message: req.Message,
	}, nil
}

func (s *stubChatService) Run(_ context.Context, chat *service.PreparedChat, w io.Writer) error {
	mux := stream.NewMultiplexer(w)
	if chat.Created {
		if err := mux.Event(constant.StreamEventProject, dto.ProjectCreatedPayload{ProjectId: chat.Project.Id}); err != nil {
			return err
		}
	}
	if err := mux.SetPhase(stream.PhaseStarting); err != nil {
		return err
	}
	if err := mux.WriteText("echo: " + chat.Message); err != nil {
		return err
	}
	return mux.Final(dto.StreamFinalPayload{ResponseMessage: "echo: " + chat.Message})
}

func newTestApp(svc service.IChatStreamService) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewChatController(svc, testSecret, logger.NewNopLogger()).RegisterRoutes(app.Group("/api"))
	return app
}

func signToken(t *testing.T, userId uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userId.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func postJSON(t *testing.T, app *fiber.App, path, token string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestStream_WritesNDJSON(t *testing.T) {
	app := newTestApp(&stubChatService{})
	token := signToken(t, uuid.New())

	resp := postJSON(t, app, "/api/chat/v1/stream", token, dto.StreamChatRequest{ProjectId: uuid.New(), Message: "what is gravity"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, stream.ContentType, resp.Header.Get("Content-Type"))
	assert.Equal(t, stream.ProtocolName, resp.Header.Get(HeaderStreamProtocol))

	tr, err := stream.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "echo: what is gravity", tr.Text)
	assert.Equal(t, []stream.Phase{stream.PhaseStarting}, tr.Phases)
	assert.NotNil(t, tr.Final)
}

func TestStream_ErrorsBeforeStreamingAreJSON(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubChatService
		token      bool
		body       any
		wantStatus int
		wantType   string
	}{
		{
			name:       "missing token",
			svc:        &stubChatService{},
			body:       dto.StreamChatRequest{ProjectId: uuid.New(), Message: "hi"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid input",
			svc:        &stubChatService{},
			token:      true,
			body:       dto.StreamChatRequest{ProjectId: uuid.New(), Message: "   "},
			wantStatus: http.StatusBadRequest,
			wantType:   string(apperror.CodeInvalidInput),
		},
		{
			name:       "project not found",
			svc:        &stubChatService{prepareErr: apperror.NotFound("Project not found")},
			token:      true,
			body:       dto.StreamChatRequest{ProjectId: uuid.New(), Message: "hi"},
			wantStatus: http.StatusNotFound,
			wantType:   string(apperror.CodeNotFound),
		},
		{
			name:       "internal error hides details",
			svc:        &stubChatService{prepareErr: errors.New("connection refused")},
			token:      true,
			body:       dto.StreamChatRequest{ProjectId: uuid.New(), Message: "hi"},
			wantStatus: http.StatusInternalServerError,
			wantType:   string(apperror.CodeInternal),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(tt.svc)
			token := ""
			if tt.token {
				token = signToken(t, uuid.New())
			}

			resp := postJSON(t, app, "/api/chat/v1/stream", token, tt.body)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var body serverutils.BaseResponse[any]
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantType, body.Error)
			assert.NotContains(t, body.Message, "connection refused")
		})
	}
}

func TestQuickCreate_StartsWithProjectEvent(t *testing.T) {
	app := newTestApp(&stubChatService{})
	token := signToken(t, uuid.New())

	resp := postJSON(t, app, "/api/project/v1/quick-create", token, dto.QuickCreateRequest{Message: "photosynthesis"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dec := stream.NewDecoder(resp.Body)
	first, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, stream.RecordEvent, first.Type)
	assert.Equal(t, constant.StreamEventProject, first.Name)
}

func TestWebSocket_StreamsRecords(t *testing.T) {
	app := newTestApp(&stubChatService{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	url := "ws://" + ln.Addr().String() + "/api/chat/v1/ws?token=" + signToken(t, uuid.New())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	req, err := json.Marshal(dto.StreamChatRequest{ProjectId: uuid.New(), Message: "hello"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, req))

	var lines bytes.Buffer
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
		lines.Write(msg)
		lines.WriteByte('\n')
	}

	tr, err := stream.ReadAll(&lines)
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", tr.Text)
	assert.NotNil(t, tr.Final)
}

func TestWebSocket_BadRequestGetsErrorRecord(t *testing.T) {
	app := newTestApp(&stubChatService{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	url := "ws://" + ln.Addr().String() + "/api/chat/v1/ws?token=" + signToken(t, uuid.New())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var rec stream.Record
	require.NoError(t, json.Unmarshal(msg, &rec))
	assert.Equal(t, stream.RecordError, rec.Type)
	assert.Equal(t, string(apperror.CodeInvalidInput), rec.Code)
}
