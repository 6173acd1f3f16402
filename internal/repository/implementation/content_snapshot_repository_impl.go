package implementation

import (
	"context"

	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/mapper"
	"coi-notes-be/internal/model"
	"coi-notes-be/internal/repository/contract"
	"coi-notes-be/internal/repository/specification"

	"gorm.io/gorm"
)

type ContentSnapshotRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ProjectMapper
}

func NewContentSnapshotRepository(db *gorm.DB) contract.ContentSnapshotRepository {
	return &ContentSnapshotRepositoryImpl{
		db:     db,
		mapper: mapper.NewProjectMapper(),
	}
}

func (r *ContentSnapshotRepositoryImpl) Create(ctx context.Context, snapshot *entity.ContentSnapshot) error {
	m := r.mapper.SnapshotToModel(snapshot)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*snapshot = *r.mapper.SnapshotToEntity(m)
	return nil
}

func (r *ContentSnapshotRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ContentSnapshot, error) {
	var models []*model.ContentSnapshot
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.ContentSnapshot, len(models))
	for i, m := range models {
		entities[i] = r.mapper.SnapshotToEntity(m)
	}
	return entities, nil
}
