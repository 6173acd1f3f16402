package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"coi-notes-be/internal/constant"
	"coi-notes-be/internal/dto"
	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/pkg/apperror"
	"coi-notes-be/internal/pkg/logger"
	"coi-notes-be/internal/pkg/serverutils"
	"coi-notes-be/internal/repository/contract"
	"coi-notes-be/internal/repository/specification"
	"coi-notes-be/internal/repository/unitofwork"
	"coi-notes-be/pkg/events"
	"coi-notes-be/pkg/llm"
	"coi-notes-be/pkg/stream"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	chatStreamModule = "ChatStream"
	tracerName       = "coi-notes-be/chat-stream"

	thinkingBudgetLow  int32 = 1024
	thinkingBudgetHigh int32 = 8192
	// pro models cannot turn thinking off; this is their minimum
	thinkingBudgetProMin int32 = 128
)

type IChatStreamService interface {
	// Prepare validates the request and loads everything the pipeline reads.
	// Errors returned here happen before any byte is streamed.
	Prepare(ctx context.Context, userId uuid.UUID, req *dto.StreamChatRequest) (*PreparedChat, error)

	// PrepareQuickCreate creates a project titled after the message.
	PrepareQuickCreate(ctx context.Context, userId uuid.UUID, req *dto.QuickCreateRequest) (*PreparedChat, error)

	// Run streams one turn to w. Failures after this point are reported as
	// an error record on the stream and also returned.
	Run(ctx context.Context, chat *PreparedChat, w io.Writer) error
}

// PreparedChat is one validated turn, ready to stream.
type PreparedChat struct {
	UserId      uuid.UUID
	Project     *entity.Project
	Created     bool
	Message     string
	History     []llm.Message
	Attachments []dto.AttachmentDTO
	Cards       []*entity.Card
	Preferences entity.ChatPreferences
}

func (c *PreparedChat) hasNonTextAttachment() bool {
	for _, a := range c.Attachments {
		if !a.IsText() {
			return true
		}
	}
	return false
}

type ChatStreamConfig struct {
	FastModel       string
	ProModel        string
	Temperature     float32
	MaxOutputTokens int32
	HistoryLimit    int
	Timeout         time.Duration
}

type chatStreamService struct {
	uowFactory  unitofwork.RepositoryFactory
	invoker     *llm.Invoker
	preferences contract.ChatPreferencesRepository
	publisher   events.Publisher
	logger      logger.ILogger
	cfg         ChatStreamConfig
	tracer      trace.Tracer
	content     *contentGenerator
	now         func() time.Time
}

func NewChatStreamService(
	uowFactory unitofwork.RepositoryFactory,
	invoker *llm.Invoker,
	preferences contract.ChatPreferencesRepository,
	publisher events.Publisher,
	log logger.ILogger,
	cfg ChatStreamConfig,
) IChatStreamService {
	tracer := otel.Tracer(tracerName)
	return &chatStreamService{
		uowFactory:  uowFactory,
		invoker:     invoker,
		preferences: preferences,
		publisher:   publisher,
		logger:      log,
		cfg:         cfg,
		tracer:      tracer,
		content: &contentGenerator{
			uowFactory: uowFactory,
			invoker:    invoker,
			logger:     log,
			tracer:     tracer,
			now:        time.Now,
		},
		now: time.Now,
	}
}

func (s *chatStreamService) Prepare(ctx context.Context, userId uuid.UUID, req *dto.StreamChatRequest) (*PreparedChat, error) {
	if err := serverutils.ValidateRequest(req); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	project, err := uow.ProjectRepository().FindOne(ctx,
		specification.ByID{ID: req.ProjectId},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return nil, apperror.NotFound("Project not found")
	}

	cards, err := uow.CardRepository().FindAll(ctx,
		specification.ByProjectID{ProjectID: project.Id},
		specification.NotExcluded{},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}

	history := make([]llm.Message, 0, len(req.MessageHistory))
	for _, turn := range req.MessageHistory {
		history = append(history, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	if len(history) == 0 && s.cfg.HistoryLimit > 0 {
		history, err = s.loadHistory(ctx, uow, project.Id)
		if err != nil {
			return nil, err
		}
	}

	return &PreparedChat{
		UserId:      userId,
		Project:     project,
		Message:     strings.TrimSpace(req.Message),
		History:     history,
		Attachments: req.Attachments,
		Cards:       cards,
		Preferences: s.resolvePreferences(ctx, userId, req.Preferences),
	}, nil
}

func (s *chatStreamService) PrepareQuickCreate(ctx context.Context, userId uuid.UUID, req *dto.QuickCreateRequest) (*PreparedChat, error) {
	if err := serverutils.ValidateRequest(req); err != nil {
		return nil, err
	}

	message := strings.TrimSpace(req.Message)
	project := &entity.Project{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     quickCreateTitle(message),
		CreatedAt: s.now(),
	}
	if err := s.uowFactory.NewUnitOfWork(ctx).ProjectRepository().Create(ctx, project); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	s.logger.Info(chatStreamModule, "Project created from message", map[string]interface{}{
		"project_id": project.Id,
		"user_id":    userId,
	})

	return &PreparedChat{
		UserId:      userId,
		Project:     project,
		Created:     true,
		Message:     message,
		Attachments: req.Attachments,
		Preferences: s.resolvePreferences(ctx, userId, req.Preferences),
	}, nil
}

// quickCreateTitle keeps the first 50 characters, cut back to the last word
// boundary when one exists past character 20.
func quickCreateTitle(message string) string {
	runes := []rune(strings.TrimSpace(message))
	if len(runes) <= constant.QuickCreateTitleMax {
		return string(runes)
	}
	cut := runes[:constant.QuickCreateTitleMax]
	for i := len(cut) - 1; i > constant.QuickCreateTitleMinBreak; i-- {
		if cut[i] == ' ' {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRight(string(cut), " ") + "..."
}

func (s *chatStreamService) loadHistory(ctx context.Context, uow unitofwork.UnitOfWork, projectId uuid.UUID) ([]llm.Message, error) {
	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByProjectID{ProjectID: projectId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Limit{N: s.cfg.HistoryLimit},
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history := make([]llm.Message, len(messages))
	for i, m := range messages {
		history[len(messages)-1-i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return history, nil
}

// resolvePreferences saves what the client sent, or falls back to the
// stored preferences. Storage problems only cost the user their defaults.
func (s *chatStreamService) resolvePreferences(ctx context.Context, userId uuid.UUID, sent *dto.ChatPreferencesDTO) entity.ChatPreferences {
	prefs := entity.DefaultChatPreferences()

	if sent != nil {
		if sent.ModelTier != "" {
			prefs.ModelTier = sent.ModelTier
		}
		if sent.ThinkingEffort != "" {
			prefs.ThinkingEffort = sent.ThinkingEffort
		}
		prefs.SearchEnabled = sent.SearchEnabled
		prefs.MaxOutputTokens = sent.MaxOutputTokens
		if err := s.preferences.Save(ctx, userId, &prefs); err != nil {
			s.logger.Warn("Preferences", "Failed to save chat preferences", map[string]interface{}{
				"user_id": userId,
				"error":   err.Error(),
			})
		}
		return prefs
	}

	stored, err := s.preferences.Get(ctx, userId)
	if err != nil {
		s.logger.Warn("Preferences", "Failed to load chat preferences, using defaults", map[string]interface{}{
			"user_id": userId,
			"error":   err.Error(),
		})
		return prefs
	}
	if stored != nil {
		return *stored
	}
	return prefs
}

func (s *chatStreamService) generationConfig(prefs entity.ChatPreferences) llm.GenerationConfig {
	cfg := llm.GenerationConfig{
		Model:           s.cfg.FastModel,
		Temperature:     s.cfg.Temperature,
		MaxOutputTokens: s.cfg.MaxOutputTokens,
		SearchEnabled:   prefs.SearchEnabled,
		ResponseSchema:  constant.ChatResponseSchema(),
	}
	pro := prefs.ModelTier == entity.ModelTierPro
	if pro {
		cfg.Model = s.cfg.ProModel
	}
	if prefs.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = prefs.MaxOutputTokens
	}

	var budget int32
	switch prefs.ThinkingEffort {
	case entity.ThinkingLow:
		budget = thinkingBudgetLow
	case entity.ThinkingHigh:
		budget = thinkingBudgetHigh
	default:
		if pro {
			budget = thinkingBudgetProMin
		}
	}
	cfg.ThinkingBudget = &budget
	return cfg
}

func (s *chatStreamService) buildRequest(chat *PreparedChat) (*llm.Request, error) {
	req := &llm.Request{
		SystemInstruction: constant.ChatResponseSystemPrompt,
		History:           chat.History,
		Input:             chat.Message,
		Config:            s.generationConfig(chat.Preferences),
	}

	if chat.Project.HasContent() || len(chat.Cards) > 0 {
		notes, err := existingNotes(chat.Project, chat.Cards)
		if err != nil {
			return nil, err
		}
		req.Context = append(req.Context, constant.ExistingNotesPrefix+notes)
	}
	if len(chat.Attachments) > 0 {
		b, err := json.Marshal(chat.Attachments)
		if err != nil {
			return nil, fmt.Errorf("encode attachments: %w", err)
		}
		req.Context = append(req.Context, constant.ChatAttachmentsPrefix+string(b))
	}
	return req, nil
}

type noteCard struct {
	Title   string   `json:"title"`
	Details []string `json:"details"`
}

func existingNotes(project *entity.Project, cards []*entity.Card) (string, error) {
	notes := struct {
		Hierarchy json.RawMessage `json:"hierarchy,omitempty"`
		Cards     []noteCard      `json:"cards,omitempty"`
	}{}
	if project.HasContent() {
		notes.Hierarchy = project.Content
	}
	for _, c := range cards {
		notes.Cards = append(notes.Cards, noteCard{Title: c.Title, Details: c.Details})
	}
	b, err := json.Marshal(notes)
	if err != nil {
		return "", fmt.Errorf("encode existing notes: %w", err)
	}
	return string(b), nil
}

// chatResponse is the document the model streams.
type chatResponse struct {
	ResponseMessage   string   `json:"responseMessage"`
	HasNewInfo        bool     `json:"hasNewInfo"`
	FollowUpQuestions []string `json:"followUpQuestions"`
}

// parseChatResponse is strict: a document that does not parse is never repaired.
func parseChatResponse(text string) (*chatResponse, error) {
	var doc chatResponse
	if err := json.Unmarshal([]byte(trimFences(text)), &doc); err != nil {
		return nil, apperror.MalformedOutput(err)
	}
	return &doc, nil
}

type turnOutcome struct {
	hasNewInfo     bool
	degraded       bool
	contentUpdated bool
	cardsCreated   int
}

func (s *chatStreamService) Run(ctx context.Context, chat *PreparedChat, w io.Writer) error {
	start := s.now()
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	ctx, span := s.tracer.Start(ctx, "chat.stream", trace.WithAttributes(
		attribute.String("project.id", chat.Project.Id.String()),
		attribute.String("model.tier", chat.Preferences.ModelTier),
		attribute.Bool("search.enabled", chat.Preferences.SearchEnabled),
	))
	defer span.End()

	mux := stream.NewMultiplexer(w)
	outcome, err := s.pipeline(ctx, chat, mux)
	if err != nil {
		appErr := apperror.As(err)
		if errors.Is(err, context.DeadlineExceeded) {
			appErr = apperror.Wrap(apperror.CodeUpstreamTransient, "The response took too long", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(appErr.Code))
		s.logger.Error(chatStreamModule, "Chat stream failed", map[string]interface{}{
			"project_id": chat.Project.Id,
			"user_id":    chat.UserId,
			"phase":      mux.Phase().String(),
			"code":       appErr.Code,
			"error":      err.Error(),
		})
		if !mux.Closed() {
			_ = mux.Fail(string(appErr.Code), clientMessage(appErr))
		}
		return appErr
	}

	elapsed := s.now().Sub(start)
	s.logger.Info(chatStreamModule, "Chat stream completed", map[string]interface{}{
		"project_id":      chat.Project.Id,
		"has_new_info":    outcome.hasNewInfo,
		"degraded":        outcome.degraded,
		"content_updated": outcome.contentUpdated,
		"cards_created":   outcome.cardsCreated,
		"duration_ms":     elapsed.Milliseconds(),
	})
	s.publishTurn(ctx, chat, outcome, elapsed)
	return nil
}

func clientMessage(appErr *apperror.AppError) string {
	if appErr.Code == apperror.CodeInternal {
		return "Internal server error"
	}
	return appErr.Message
}

func (s *chatStreamService) pipeline(ctx context.Context, chat *PreparedChat, mux *stream.Multiplexer) (*turnOutcome, error) {
	if chat.Created {
		if err := mux.Event(constant.StreamEventProject, dto.ProjectCreatedPayload{
			ProjectId: chat.Project.Id,
			Title:     chat.Project.Title,
		}); err != nil {
			return nil, err
		}
	}
	if err := mux.SetPhase(stream.PhaseStarting); err != nil {
		return nil, err
	}
	if strings.TrimSpace(chat.Message) == "" {
		return nil, apperror.InvalidInput("Message is required")
	}

	req, err := s.buildRequest(chat)
	if err != nil {
		return nil, err
	}

	extractor := stream.NewFieldExtractor(constant.ResponseMessageField,
		stream.WithMalformedHandler(func(seq string) {
			s.logger.Warn(chatStreamModule, "Dropped malformed escape in streamed response", map[string]interface{}{
				"project_id": chat.Project.Id,
				"sequence":   seq,
			})
		}),
	)

	streamCtx, streamSpan := s.tracer.Start(ctx, "upstream.stream")
	res, err := s.invoker.InvokeStreaming(streamCtx, req, func(fragment string) error {
		if err := mux.SetPhase(stream.PhaseStreaming); err != nil {
			return err
		}
		return mux.WriteText(extractor.Feed(fragment))
	})
	streamSpan.End()
	if err != nil {
		if mux.Closed() || isWriteFailure(err) {
			return nil, apperror.Wrap(apperror.CodeInternal, "Client connection lost", err)
		}
		return nil, apperror.FromUpstream(err)
	}

	if err := mux.SetPhase(stream.PhaseProcessing); err != nil {
		return nil, err
	}
	doc, err := parseChatResponse(res.Text)
	if err != nil {
		return nil, err
	}
	if streamed := extractor.Value(); streamed != doc.ResponseMessage {
		s.logger.Warn(chatStreamModule, "Streamed text differs from parsed response", map[string]interface{}{
			"project_id":   chat.Project.Id,
			"streamed_len": len(streamed),
			"parsed_len":   len(doc.ResponseMessage),
		})
	}

	persisted := make(chan error, 1)
	go func() {
		persisted <- s.persistTurn(context.WithoutCancel(ctx), chat, doc.ResponseMessage)
	}()
	joined := false
	join := func() {
		if joined {
			return
		}
		joined = true
		if err := <-persisted; err != nil {
			s.logger.Error(chatStreamModule, "Failed to persist chat turn", map[string]interface{}{
				"project_id": chat.Project.Id,
				"error":      err.Error(),
			})
		}
	}
	defer join()

	sources := res.GroundingChunks
	followUps := doc.FollowUpQuestions
	if err := mux.Event(constant.StreamEventUpdate, dto.StreamUpdatePayload{
		ResponseMessage:   doc.ResponseMessage,
		Sources:           sources,
		FollowUpQuestions: followUps,
	}); err != nil {
		return nil, err
	}

	outcome := &turnOutcome{hasNewInfo: doc.HasNewInfo}
	final := dto.StreamFinalPayload{
		ResponseMessage:   doc.ResponseMessage,
		HasNewInfo:        doc.HasNewInfo,
		FollowUpQuestions: followUps,
		Sources:           sources,
	}

	if doc.HasNewInfo || len(sources) > 0 || chat.hasNonTextAttachment() {
		if err := mux.SetPhase(stream.PhaseGeneratingContent); err != nil {
			return nil, err
		}
		content, err := s.content.Generate(ctx, contentInput{
			Project:  chat.Project,
			Message:  chat.Message,
			Response: doc.ResponseMessage,
			Sources:  sources,
			Config:   req.Config,
		})
		if err != nil {
			outcome.degraded = true
			final.ResponseMessage += constant.ContentDegradedWarning
			s.logger.Warn(chatStreamModule, "Content generation degraded", map[string]interface{}{
				"project_id": chat.Project.Id,
				"code":       apperror.CodeDownstreamDegraded,
				"error":      err.Error(),
			})
		} else {
			outcome.contentUpdated = true
			outcome.cardsCreated = len(content.Cards)
			final.NewHierarchy = content.Hierarchy
			final.NewCards = cardDTOs(content.Cards)
		}
	}

	join()
	if err := mux.Final(final); err != nil {
		return nil, err
	}
	return outcome, nil
}

func isWriteFailure(err error) bool {
	var llmErr *llm.Error
	return !errors.As(err, &llmErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (s *chatStreamService) persistTurn(ctx context.Context, chat *PreparedChat, response string) error {
	now := s.now()
	messages := []*entity.ChatMessage{
		{
			Id:        uuid.New(),
			ProjectId: chat.Project.Id,
			UserId:    chat.UserId,
			Role:      constant.ChatMessageRoleUser,
			Content:   chat.Message,
			CreatedAt: now,
		},
		{
			Id:        uuid.New(),
			ProjectId: chat.Project.Id,
			UserId:    chat.UserId,
			Role:      constant.ChatMessageRoleModel,
			Content:   response,
			CreatedAt: now.Add(time.Millisecond),
		},
	}
	return s.uowFactory.NewUnitOfWork(ctx).ChatMessageRepository().CreateBatch(ctx, messages)
}

func (s *chatStreamService) publishTurn(ctx context.Context, chat *PreparedChat, outcome *turnOutcome, elapsed time.Duration) {
	if s.publisher == nil {
		return
	}
	event := events.BaseEvent{
		Type: constant.EventTypeChatTurnCompleted,
		Data: map[string]interface{}{
			"project_id":      chat.Project.Id.String(),
			"user_id":         chat.UserId.String(),
			"quick_create":    chat.Created,
			"has_new_info":    outcome.hasNewInfo,
			"degraded":        outcome.degraded,
			"content_updated": outcome.contentUpdated,
			"cards_created":   outcome.cardsCreated,
			"duration_ms":     elapsed.Milliseconds(),
		},
		OccurredAt: s.now(),
	}
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(pubCtx, event); err != nil {
			s.logger.Warn("Events", "Failed to publish chat turn event", map[string]interface{}{
				"project_id": chat.Project.Id,
				"error":      err.Error(),
			})
		}
	}()
}

func cardDTOs(cards []*entity.Card) []dto.CardDTO {
	out := make([]dto.CardDTO, len(cards))
	for i, c := range cards {
		out[i] = dto.CardDTO{
			Id:        c.Id,
			Title:     c.Title,
			Details:   c.Details,
			SourceURI: c.SourceURI,
		}
	}
	return out
}
