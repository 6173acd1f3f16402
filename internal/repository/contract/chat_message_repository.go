package contract

import (
	"context"

	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/repository/specification"
)

type ChatMessageRepository interface {
	CreateBatch(ctx context.Context, messages []*entity.ChatMessage) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error)
}
