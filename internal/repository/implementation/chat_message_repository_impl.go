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

type ChatMessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatMessageRepository(db *gorm.DB) contract.ChatMessageRepository {
	return &ChatMessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatMessageRepositoryImpl) CreateBatch(ctx context.Context, messages []*entity.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	models := make([]*model.ChatMessage, len(messages))
	for i, msg := range messages {
		models[i] = r.mapper.ChatMessageToModel(msg)
	}
	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}
	for i, m := range models {
		*messages[i] = *r.mapper.ChatMessageToEntity(m)
	}
	return nil
}

func (r *ChatMessageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	var models []*model.ChatMessage
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.ChatMessage, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ChatMessageToEntity(m)
	}
	return entities, nil
}
