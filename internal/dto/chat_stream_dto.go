package dto

import (
	"encoding/json"
	"strings"

	"coi-notes-be/internal/pkg/serverutils"
	"coi-notes-be/pkg/llm"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	AttachmentTypeCard = "card"
	AttachmentTypeNote = "note"
	AttachmentTypeFile = "file"

	MaxAttachments         = 10
	MaxAttachmentTotalSize = 10 * 1024 * 1024
)

var allowedMimePrefixes = []string{"image/", "text/", "application/pdf"}

type ChatTurnDTO struct {
	Role    string `json:"role" validate:"required,oneof=user model"`
	Content string `json:"content"`
}

// AttachmentDTO is a card, a note section or an uploaded file the user
// pinned to the message. Files arrive with their text already extracted.
type AttachmentDTO struct {
	Type     string   `json:"type" validate:"required,oneof=card note file"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Details  []string `json:"details,omitempty"`
	MimeType string   `json:"mimeType"`
	Size     int64    `json:"size" validate:"gte=0"`
}

// IsText reports whether the attachment can be read as plain text.
func (a AttachmentDTO) IsText() bool {
	return a.Type != AttachmentTypeFile || strings.HasPrefix(a.MimeType, "text/")
}

type ChatPreferencesDTO struct {
	ModelTier       string `json:"modelTier" validate:"omitempty,oneof=fast pro"`
	ThinkingEffort  string `json:"thinkingEffort" validate:"omitempty,oneof=off low high"`
	SearchEnabled   bool   `json:"searchEnabled"`
	MaxOutputTokens int32  `json:"maxOutputTokens" validate:"omitempty,gte=256,lte=65536"`
}

type StreamChatRequest struct {
	ProjectId      uuid.UUID           `json:"projectId" validate:"required"`
	Message        string              `json:"message" validate:"required,notblank,max=20000"`
	MessageHistory []ChatTurnDTO       `json:"messageHistory" validate:"max=200,dive"`
	Attachments    []AttachmentDTO     `json:"attachments" validate:"max=10,dive"`
	Preferences    *ChatPreferencesDTO `json:"preferences,omitempty"`
}

type QuickCreateRequest struct {
	Message     string              `json:"message" validate:"required,notblank,max=20000"`
	Attachments []AttachmentDTO     `json:"attachments" validate:"max=10,dive"`
	Preferences *ChatPreferencesDTO `json:"preferences,omitempty"`
}

type CardDTO struct {
	Id        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Details   []string  `json:"details"`
	SourceURI string    `json:"sourceUri,omitempty"`
}

// ProjectCreatedPayload is the data of the "project" event sent first by quick create.
type ProjectCreatedPayload struct {
	ProjectId uuid.UUID `json:"projectId"`
	Title     string    `json:"title"`
}

// StreamUpdatePayload is the data of the "update" event sent once the
// streamed document has been parsed.
type StreamUpdatePayload struct {
	ResponseMessage   string               `json:"responseMessage"`
	Sources           []llm.GroundingChunk `json:"sources"`
	FollowUpQuestions []string             `json:"followUpQuestions"`
}

// StreamFinalPayload is the terminal result. NewHierarchy and NewCards are
// null when no content was generated or content generation failed.
type StreamFinalPayload struct {
	ResponseMessage   string               `json:"responseMessage"`
	HasNewInfo        bool                 `json:"hasNewInfo"`
	FollowUpQuestions []string             `json:"followUpQuestions"`
	Sources           []llm.GroundingChunk `json:"sources"`
	NewHierarchy      json.RawMessage      `json:"newHierarchy"`
	NewCards          []CardDTO            `json:"newCards"`
}

func init() {
	serverutils.RegisterStructValidation(func(sl validator.StructLevel) {
		validateAttachments(sl, sl.Current().Interface().(StreamChatRequest).Attachments)
	}, StreamChatRequest{})
	serverutils.RegisterStructValidation(func(sl validator.StructLevel) {
		validateAttachments(sl, sl.Current().Interface().(QuickCreateRequest).Attachments)
	}, QuickCreateRequest{})
}

func validateAttachments(sl validator.StructLevel, attachments []AttachmentDTO) {
	var total int64
	for _, a := range attachments {
		total += a.Size
		if a.Type == AttachmentTypeFile && !allowedMime(a.MimeType) {
			sl.ReportError(a.MimeType, "Attachments", "Attachments", "mimetype", a.MimeType)
		}
	}
	if total > MaxAttachmentTotalSize {
		sl.ReportError(total, "Attachments", "Attachments", "totalsize", "10MB")
	}
}

func allowedMime(mime string) bool {
	for _, prefix := range allowedMimePrefixes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}
