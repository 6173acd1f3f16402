package contract

import (
	"context"

	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/repository/specification"
)

type CardRepository interface {
	CreateBatch(ctx context.Context, cards []*entity.Card) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Card, error)
}
