package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	Id        uuid.UUID
	ProjectId uuid.UUID
	UserId    uuid.UUID
	Role      string
	Content   string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}
