package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"coi-notes-be/internal/pkg/logger"
	"coi-notes-be/pkg/llm"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"
)

const module = "Gemini"

// Ensure GeminiProvider implements Provider
var _ llm.Provider = &GeminiProvider{}

type GeminiProvider struct {
	Client       *genai.Client
	DefaultModel string
	logger       logger.ILogger
}

func NewGeminiProvider(ctx context.Context, apiKey, defaultModel string, log logger.ILogger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{Client: client, DefaultModel: defaultModel, logger: log}, nil
}

func (g *GeminiProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	cfg := convConfig(req)
	resp, err := g.Client.Models.GenerateContent(ctx, g.model(req), convContents(req), cfg)
	if err != nil {
		return nil, convError(err)
	}

	acc := &accumulator{}
	if err := acc.add(resp); err != nil {
		return nil, err
	}
	g.logger.Debug(module, "Generate completed", map[string]interface{}{
		"model": g.model(req),
		"chars": acc.text.Len(),
	})
	return acc.result(), nil
}

func (g *GeminiProvider) GenerateStream(ctx context.Context, req *llm.Request, onFragment llm.FragmentHandler) (*llm.Result, error) {
	cfg := convConfig(req)
	chunks := g.Client.Models.GenerateContentStream(ctx, g.model(req), convContents(req), cfg)
	return pull(chunks, onFragment)
}

func (g *GeminiProvider) model(req *llm.Request) string {
	if req.Config.Model != "" {
		return req.Config.Model
	}
	return g.DefaultModel
}

func pull(chunks iter.Seq2[*genai.GenerateContentResponse, error], onFragment llm.FragmentHandler) (*llm.Result, error) {
	acc := &accumulator{}
	for chunk, err := range chunks {
		if err != nil {
			return nil, convError(err)
		}
		before := acc.text.Len()
		if err := acc.add(chunk); err != nil {
			return nil, err
		}
		if fragment := acc.text.String()[before:]; fragment != "" {
			if err := onFragment(fragment); err != nil {
				return nil, err
			}
		}
	}
	return acc.result(), nil
}

// accumulator joins text parts and collects grounding sources across chunks.
type accumulator struct {
	text    strings.Builder
	sources []llm.GroundingChunk
	seen    map[string]struct{}
}

func (a *accumulator) add(resp *genai.GenerateContentResponse) error {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return &llm.StatusError{Status: 400, Message: "prompt blocked: " + string(resp.PromptFeedback.BlockReason)}
		}
		return nil
	}
	c := resp.Candidates[0]
	if c.Content != nil {
		for _, p := range c.Content.Parts {
			if p == nil || p.Thought || p.Text == "" {
				continue
			}
			a.text.WriteString(p.Text)
		}
	}
	if c.GroundingMetadata != nil {
		for _, gc := range c.GroundingMetadata.GroundingChunks {
			if gc == nil || gc.Web == nil || gc.Web.URI == "" {
				continue
			}
			if a.seen == nil {
				a.seen = make(map[string]struct{})
			}
			if _, ok := a.seen[gc.Web.URI]; ok {
				continue
			}
			a.seen[gc.Web.URI] = struct{}{}
			a.sources = append(a.sources, llm.GroundingChunk{URI: gc.Web.URI, Title: gc.Web.Title})
		}
	}
	return nil
}

func (a *accumulator) result() *llm.Result {
	return &llm.Result{Text: a.text.String(), GroundingChunks: a.sources}
}

func convContents(req *llm.Request) []*genai.Content {
	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for _, m := range req.Messages() {
		role := genai.RoleUser
		if m.Role == llm.RoleModel {
			role = genai.RoleModel
		}
		part := genai.NewPartFromText(m.Content)
		// consecutive turns of the same role are merged
		if last != nil && last.Role == string(role) {
			last.Parts = append(last.Parts, part)
			continue
		}
		last = &genai.Content{Role: string(role), Parts: []*genai.Part{part}}
		contents = append(contents, last)
	}
	return contents
}

func convConfig(req *llm.Request) *genai.GenerateContentConfig {
	c := req.Config
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.Temperature),
	}
	if c.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = c.MaxOutputTokens
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(req.SystemInstruction)}}
	}
	if c.ThinkingBudget != nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(*c.ThinkingBudget)}
	}

	// The API refuses a response schema together with the search tool
	if c.SearchEnabled {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
		return cfg
	}
	if c.ResponseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = convSchema(c.ResponseSchema)
	}
	return cfg
}

func convSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	enums := make([]string, 0, len(schema.Enum))
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}

	gs := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Enum:        enums,
		Items:       convSchema(schema.Items),
		Required:    schema.Required,
	}

	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = convSchema(prop)
		}
		// Go maps lose order; required order decides where the streamed field lands
		for _, name := range schema.Required {
			if _, ok := schema.Properties[name]; ok {
				gs.PropertyOrdering = append(gs.PropertyOrdering, name)
			}
		}
	}
	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}

// convError lifts API failures into a StatusError so the invoker can classify them.
func convError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.StatusError{Status: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &llm.StatusError{Status: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return err
}
