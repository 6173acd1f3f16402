package contract

import (
	"context"

	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/repository/specification"
)

type ContentSnapshotRepository interface {
	Create(ctx context.Context, snapshot *entity.ContentSnapshot) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ContentSnapshot, error)
}
