package mapper

import (
	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/model"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

func (m *ChatMapper) ChatMessageToEntity(msg *model.ChatMessage) *entity.ChatMessage {
	if msg == nil {
		return nil
	}

	return &entity.ChatMessage{
		Id:        msg.Id,
		ProjectId: msg.ProjectId,
		UserId:    msg.UserId,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		UpdatedAt: updatedAtPtr(msg.UpdatedAt),
		DeletedAt: deletedAtPtr(msg.DeletedAt),
		IsDeleted: msg.DeletedAt.Valid,
	}
}

func (m *ChatMapper) ChatMessageToModel(msg *entity.ChatMessage) *model.ChatMessage {
	if msg == nil {
		return nil
	}

	return &model.ChatMessage{
		Id:        msg.Id,
		ProjectId: msg.ProjectId,
		UserId:    msg.UserId,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		UpdatedAt: updatedAtValue(msg.UpdatedAt),
		DeletedAt: toDeletedAt(msg.DeletedAt, msg.IsDeleted),
	}
}
