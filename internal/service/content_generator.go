package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coi-notes-be/internal/constant"
	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/pkg/apperror"
	"coi-notes-be/internal/pkg/logger"
	"coi-notes-be/internal/repository/specification"
	"coi-notes-be/internal/repository/unitofwork"
	"coi-notes-be/pkg/llm"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	contentTemperature     float32 = 0.2
	contentMaxOutputTokens int32   = 8192
)

type contentInput struct {
	Project  *entity.Project
	Message  string
	Response string
	Sources  []llm.GroundingChunk
	Config   llm.GenerationConfig
}

type contentOutput struct {
	Hierarchy json.RawMessage
	Cards     []*entity.Card
}

// contentGenerator rebuilds a project's notes after a turn that taught
// something new. Either everything is written or nothing is.
type contentGenerator struct {
	uowFactory unitofwork.RepositoryFactory
	invoker    *llm.Invoker
	logger     logger.ILogger
	tracer     trace.Tracer
	now        func() time.Time
}

func (g *contentGenerator) Generate(ctx context.Context, in contentInput) (*contentOutput, error) {
	ctx, span := g.tracer.Start(ctx, "content.generate")
	defer span.End()

	var (
		hierarchy json.RawMessage
		derived   []*entity.Card
		sourced   []*entity.Card
		existing  []*entity.Card
	)

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		h, err := g.regenerate(gctx, in)
		if err != nil {
			return err
		}
		hierarchy = h
		derived = deriveCards(h)
		return nil
	})
	grp.Go(func() error {
		cards, err := g.uowFactory.NewUnitOfWork(gctx).CardRepository().FindAll(gctx,
			specification.ByProjectID{ProjectID: in.Project.Id},
		)
		if err != nil {
			return fmt.Errorf("load existing cards: %w", err)
		}
		existing = cards
		sourced = sourceCards(in.Sources)
		return nil
	})
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	fresh := dedupeCards(existing, append(derived, sourced...))
	now := g.now()
	for _, c := range fresh {
		c.Id = uuid.New()
		c.ProjectId = in.Project.Id
		c.CreatedAt = now
	}

	uow := g.uowFactory.NewUnitOfWork(ctx)
	err := unitofwork.WithTransaction(ctx, uow, func(tx unitofwork.UnitOfWork) error {
		if err := tx.ProjectRepository().UpdateContent(ctx, in.Project.Id, hierarchy); err != nil {
			return fmt.Errorf("update project content: %w", err)
		}
		if err := tx.ContentSnapshotRepository().Create(ctx, &entity.ContentSnapshot{
			Id:        uuid.New(),
			ProjectId: in.Project.Id,
			Content:   hierarchy,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("create content snapshot: %w", err)
		}
		if err := tx.CardRepository().CreateBatch(ctx, fresh); err != nil {
			return fmt.Errorf("create cards: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("cards.derived", len(derived)),
		attribute.Int("cards.sourced", len(sourced)),
		attribute.Int("cards.created", len(fresh)),
	)
	g.logger.Debug(chatStreamModule, "Content regenerated", map[string]interface{}{
		"project_id":    in.Project.Id,
		"cards_derived": len(derived),
		"cards_sourced": len(sourced),
		"cards_created": len(fresh),
	})
	return &contentOutput{Hierarchy: hierarchy, Cards: fresh}, nil
}

func (g *contentGenerator) regenerate(ctx context.Context, in contentInput) (json.RawMessage, error) {
	prompt := constant.GenerateContentSystemPrompt
	var input strings.Builder
	if in.Project.HasContent() {
		prompt = constant.UpdateContentSystemPrompt
		input.WriteString(constant.ExistingNotesPrefix)
		input.Write(in.Project.Content)
		input.WriteString("\n\n")
	}
	input.WriteString("LATEST TURN:\nUser: ")
	input.WriteString(in.Message)
	input.WriteString("\nAssistant: ")
	input.WriteString(in.Response)

	cfg := in.Config
	cfg.Temperature = contentTemperature
	cfg.MaxOutputTokens = contentMaxOutputTokens
	cfg.SearchEnabled = false
	cfg.ResponseSchema = constant.ContentHierarchySchema()

	res, err := g.invoker.Invoke(ctx, &llm.Request{
		SystemInstruction: prompt,
		Input:             input.String(),
		Config:            cfg,
	})
	if err != nil {
		return nil, apperror.FromUpstream(err)
	}
	return parseHierarchy(res.Text)
}

type hierarchyRoot struct {
	Title *string `json:"title"`
}

// parseHierarchy repairs slightly broken JSON and returns it compacted.
func parseHierarchy(text string) (json.RawMessage, error) {
	raw := []byte(trimFences(text))
	var root hierarchyRoot
	if err := unmarshalLenient(raw, &root); err != nil {
		return nil, apperror.MalformedOutput(fmt.Errorf("content hierarchy: %w", err))
	}
	if root.Title == nil {
		return nil, apperror.MalformedOutput(errors.New("content hierarchy: root has no title"))
	}

	var doc any
	if err := unmarshalLenient(raw, &doc); err != nil {
		return nil, apperror.MalformedOutput(fmt.Errorf("content hierarchy: %w", err))
	}
	compact, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return compact, nil
}

func unmarshalLenient(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// trimFences strips a markdown code fence around a JSON document.
func trimFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// deriveCards walks the hierarchy: every object with a string title and a
// details array is a card holding its string details. Nested objects inside
// details are searched as well.
func deriveCards(hierarchy json.RawMessage) []*entity.Card {
	dec := json.NewDecoder(bytes.NewReader(hierarchy))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil
	}
	var cards []*entity.Card
	collectCards(doc, &cards)
	return cards
}

func collectCards(node any, cards *[]*entity.Card) {
	switch v := node.(type) {
	case map[string]any:
		title, isTitle := v["title"].(string)
		details, isDetails := v["details"].([]any)
		if isTitle && isDetails {
			if len(details) > 0 {
				card := &entity.Card{Title: title}
				for _, d := range details {
					if s, ok := d.(string); ok {
						card.Details = append(card.Details, s)
					}
				}
				*cards = append(*cards, card)
			}
			for _, d := range details {
				collectCards(d, cards)
			}
			if children, ok := v["children"]; ok {
				collectCards(children, cards)
			}
			return
		}
		for _, child := range v {
			collectCards(child, cards)
		}
	case []any:
		for _, child := range v {
			collectCards(child, cards)
		}
	}
}

func sourceCards(sources []llm.GroundingChunk) []*entity.Card {
	cards := make([]*entity.Card, 0, len(sources))
	for _, src := range sources {
		title := strings.TrimSpace(src.Title)
		if title == "" {
			title = src.URI
		}
		cards = append(cards, &entity.Card{
			Title:     title,
			Details:   []string{src.URI},
			SourceURI: src.URI,
		})
	}
	return cards
}

// dedupeCards drops candidates whose title and details already exist,
// either in the project or earlier in the candidate list.
func dedupeCards(existing, candidates []*entity.Card) []*entity.Card {
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, c := range existing {
		seen[c.Key()] = struct{}{}
	}
	fresh := make([]*entity.Card, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.Key()]; dup {
			continue
		}
		seen[c.Key()] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh
}
