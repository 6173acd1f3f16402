package gemini

import (
	"errors"
	"iter"
	"net/http"
	"testing"

	"coi-notes-be/pkg/llm"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func textChunk(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func seq(chunks []*genai.GenerateContentResponse, tail error) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if tail != nil {
			yield(nil, tail)
		}
	}
}

func TestPull_ForwardsTextAndCollectsSources(t *testing.T) {
	grounded := textChunk(genai.NewPartFromText(`"}`))
	grounded.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://a.example", Title: "A"}},
			{Web: &genai.GroundingChunkWeb{URI: "https://a.example", Title: "A again"}},
			{Web: nil},
		},
	}

	chunks := []*genai.GenerateContentResponse{
		textChunk(&genai.Part{Text: "thinking...", Thought: true}, genai.NewPartFromText(`{"responseMessage":"`)),
		textChunk(genai.NewPartFromText("hi")),
		{},
		grounded,
	}

	var fragments []string
	res, err := pull(seq(chunks, nil), func(f string) error {
		fragments = append(fragments, f)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{`{"responseMessage":"`, "hi", `"}`}, fragments)
	assert.Equal(t, `{"responseMessage":"hi"}`, res.Text)
	assert.Equal(t, []llm.GroundingChunk{{URI: "https://a.example", Title: "A"}}, res.GroundingChunks)
}

func TestPull_ConvertsAPIErrors(t *testing.T) {
	_, err := pull(seq(nil, genai.APIError{Code: http.StatusServiceUnavailable, Message: "overloaded"}), func(string) error { return nil })

	var se *llm.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.Equal(t, "overloaded", se.Message)
}

func TestPull_StopsOnHandlerError(t *testing.T) {
	stop := errors.New("client gone")
	chunks := []*genai.GenerateContentResponse{
		textChunk(genai.NewPartFromText("a")),
		textChunk(genai.NewPartFromText("b")),
	}

	calls := 0
	_, err := pull(seq(chunks, nil), func(string) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestConvContents_MergesConsecutiveRoles(t *testing.T) {
	req := &llm.Request{
		History: []llm.Message{
			{Role: llm.RoleUser, Content: "q1"},
			{Role: llm.RoleModel, Content: "a1"},
		},
		Input:   "q2",
		Context: []string{"EXISTING NOTES: {}"},
	}

	contents := convContents(req)

	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "user", contents[2].Role)
	require.Len(t, contents[2].Parts, 2)
	assert.Equal(t, "q2", contents[2].Parts[0].Text)
	assert.Equal(t, "EXISTING NOTES: {}", contents[2].Parts[1].Text)
}

func TestConvConfig(t *testing.T) {
	budget := int32(0)
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"hasNewInfo":      {Type: "boolean"},
			"responseMessage": {Type: "string"},
			"followUpQuestions": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string"},
			},
		},
		Required: []string{"responseMessage", "hasNewInfo", "followUpQuestions"},
	}

	t.Run("structured output", func(t *testing.T) {
		cfg := convConfig(&llm.Request{
			SystemInstruction: "sys",
			Config: llm.GenerationConfig{
				Temperature:     0.5,
				MaxOutputTokens: 1024,
				ThinkingBudget:  &budget,
				ResponseSchema:  schema,
			},
		})

		assert.Equal(t, float32(0.5), *cfg.Temperature)
		assert.Equal(t, int32(1024), cfg.MaxOutputTokens)
		assert.Equal(t, "sys", cfg.SystemInstruction.Parts[0].Text)
		require.NotNil(t, cfg.ThinkingConfig)
		assert.Equal(t, int32(0), *cfg.ThinkingConfig.ThinkingBudget)
		assert.Equal(t, "application/json", cfg.ResponseMIMEType)
		require.NotNil(t, cfg.ResponseSchema)
		assert.Equal(t, genai.TypeObject, cfg.ResponseSchema.Type)
		assert.Equal(t, []string{"responseMessage", "hasNewInfo", "followUpQuestions"}, cfg.ResponseSchema.PropertyOrdering)
		assert.Equal(t, genai.TypeString, cfg.ResponseSchema.Properties["followUpQuestions"].Items.Type)
		assert.Empty(t, cfg.Tools)
	})

	t.Run("search grounding drops the schema", func(t *testing.T) {
		cfg := convConfig(&llm.Request{Config: llm.GenerationConfig{SearchEnabled: true, ResponseSchema: schema}})

		require.Len(t, cfg.Tools, 1)
		assert.NotNil(t, cfg.Tools[0].GoogleSearch)
		assert.Nil(t, cfg.ResponseSchema)
		assert.Empty(t, cfg.ResponseMIMEType)
		assert.Nil(t, cfg.ThinkingConfig)
	})
}
