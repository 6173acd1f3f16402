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

type CardRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ProjectMapper
}

func NewCardRepository(db *gorm.DB) contract.CardRepository {
	return &CardRepositoryImpl{
		db:     db,
		mapper: mapper.NewProjectMapper(),
	}
}

func (r *CardRepositoryImpl) CreateBatch(ctx context.Context, cards []*entity.Card) error {
	if len(cards) == 0 {
		return nil
	}
	models := make([]*model.Card, len(cards))
	for i, c := range cards {
		models[i] = r.mapper.CardToModel(c)
	}
	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}
	for i, m := range models {
		*cards[i] = *r.mapper.CardToEntity(m)
	}
	return nil
}

func (r *CardRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Card, error) {
	var models []*model.Card
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Card, len(models))
	for i, m := range models {
		entities[i] = r.mapper.CardToEntity(m)
	}
	return entities, nil
}
