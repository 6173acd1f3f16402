package llm

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message represents a chat turn in a provider-agnostic format
type Message struct {
	Role    string // "user" or "model"
	Content string
}

// GenerationConfig is the per-request knob bundle.
type GenerationConfig struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32

	// ThinkingBudget caps reasoning tokens. nil leaves the model default, 0 disables thinking.
	ThinkingBudget *int32

	// SearchEnabled turns on external search grounding where the backend supports it.
	SearchEnabled bool

	// ResponseSchema forces structured JSON output. The order of Required is
	// used as the property order, so list the streamed field first.
	ResponseSchema *jsonschema.Schema
}

// Request is immutable once handed to a Provider.
type Request struct {
	SystemInstruction string
	History           []Message
	Input             string

	// Context parts appended after Input as extra user turns
	// (existing notes, attachments).
	Context []string

	Config GenerationConfig
}

// Messages flattens History, Input and Context into the ordered turn list
// sent upstream. Empty turns are skipped.
func (r *Request) Messages() []Message {
	msgs := make([]Message, 0, len(r.History)+1+len(r.Context))
	for _, m := range r.History {
		if m.Content == "" {
			continue
		}
		msgs = append(msgs, m)
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: r.Input})
	for _, c := range r.Context {
		if c == "" {
			continue
		}
		msgs = append(msgs, Message{Role: RoleUser, Content: c})
	}
	return msgs
}

// GroundingChunk is a web source the model used while answering.
type GroundingChunk struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Result is the complete upstream output.
type Result struct {
	Text            string
	GroundingChunks []GroundingChunk
}

// FragmentHandler receives raw fragments in arrival order. Returning an
// error aborts the call.
type FragmentHandler func(fragment string) error

// Provider defines the contract for any LLM backend
type Provider interface {
	// Generate returns the whole response at once
	Generate(ctx context.Context, req *Request) (*Result, error)

	// GenerateStream calls onFragment for each fragment before returning the
	// accumulated result.
	GenerateStream(ctx context.Context, req *Request, onFragment FragmentHandler) (*Result, error)
}
