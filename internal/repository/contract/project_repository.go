package contract

import (
	"context"
	"encoding/json"

	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ProjectRepository interface {
	Create(ctx context.Context, project *entity.Project) error
	UpdateContent(ctx context.Context, id uuid.UUID, content json.RawMessage) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Project, error)
}
