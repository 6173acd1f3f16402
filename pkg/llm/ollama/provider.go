package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"coi-notes-be/pkg/llm"
)

type OllamaProvider struct {
	BaseURL   string
	ModelName string
	Client    *http.Client
}

// Ensure OllamaProvider implements Provider
var _ llm.Provider = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName string) *OllamaProvider {
	return &OllamaProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelName: modelName,
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
	Think    *bool           `json:"think,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int32   `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// --- Interface Implementation ---

func (o *OllamaProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	resp, err := o.send(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(bodyBytes, &ollamaResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if ollamaResp.Error != "" {
		return nil, &llm.StatusError{Status: http.StatusBadGateway, Message: ollamaResp.Error}
	}

	return &llm.Result{Text: ollamaResp.Message.Content}, nil
}

// GenerateStream reads the NDJSON chunk stream of /api/chat.
func (o *OllamaProvider) GenerateStream(ctx context.Context, req *llm.Request, onFragment llm.FragmentHandler) (*llm.Result, error) {
	resp, err := o.send(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		text   strings.Builder
		reader = bufio.NewReader(resp.Body)
	)
	for {
		line, readErr := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				return nil, fmt.Errorf("unmarshal stream chunk: %w", err)
			}
			if chunk.Error != "" {
				return nil, &llm.StatusError{Status: http.StatusBadGateway, Message: chunk.Error}
			}
			if c := chunk.Message.Content; c != "" {
				text.WriteString(c)
				if err := onFragment(c); err != nil {
					return nil, err
				}
			}
			if chunk.Done {
				return &llm.Result{Text: text.String()}, nil
			}
		}
		if readErr == io.EOF {
			return nil, fmt.Errorf("ollama stream ended before done: %w", io.ErrUnexpectedEOF)
		}
		if readErr != nil {
			return nil, fmt.Errorf("read stream: %w", readErr)
		}
	}
}

func (o *OllamaProvider) send(ctx context.Context, req *llm.Request, stream bool) (*http.Response, error) {
	payloadBytes, err := json.Marshal(o.buildRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := o.BaseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &llm.StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
	}
	return resp, nil
}

func (o *OllamaProvider) buildRequest(req *llm.Request, stream bool) ollamaChatRequest {
	var msgs []ollamaMessage
	if req.SystemInstruction != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: req.SystemInstruction})
	}
	for _, m := range req.Messages() {
		role := m.Role
		if role == llm.RoleModel {
			role = "assistant"
		}
		msgs = append(msgs, ollamaMessage{Role: role, Content: m.Content})
	}

	model := o.ModelName
	if req.Config.Model != "" {
		model = req.Config.Model
	}

	payload := ollamaChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   stream,
		Options: &ollamaOptions{
			Temperature: req.Config.Temperature,
			NumPredict:  req.Config.MaxOutputTokens,
		},
	}
	if req.Config.ResponseSchema != nil {
		if b, err := json.Marshal(req.Config.ResponseSchema); err == nil {
			payload.Format = b
		}
	}
	if req.Config.ThinkingBudget != nil {
		think := *req.Config.ThinkingBudget != 0
		payload.Think = &think
	}
	return payload
}
