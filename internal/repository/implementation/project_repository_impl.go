package implementation

import (
	"context"
	"encoding/json"
	"errors"

	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/mapper"
	"coi-notes-be/internal/model"
	"coi-notes-be/internal/repository/contract"
	"coi-notes-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProjectRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ProjectMapper
}

func NewProjectRepository(db *gorm.DB) contract.ProjectRepository {
	return &ProjectRepositoryImpl{
		db:     db,
		mapper: mapper.NewProjectMapper(),
	}
}

func (r *ProjectRepositoryImpl) Create(ctx context.Context, project *entity.Project) error {
	m := r.mapper.ProjectToModel(project)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*project = *r.mapper.ProjectToEntity(m)
	return nil
}

// UpdateContent overwrites the hierarchy. Concurrent writers are last-write-wins.
func (r *ProjectRepositoryImpl) UpdateContent(ctx context.Context, id uuid.UUID, content json.RawMessage) error {
	res := r.db.WithContext(ctx).
		Model(&model.Project{}).
		Where("id = ?", id).
		Update("content", datatypes.JSON(content))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ProjectRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Project, error) {
	var m model.Project
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ProjectToEntity(&m), nil
}
