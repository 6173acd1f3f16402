package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ContentSnapshot is append-only history of a project's content.
type ContentSnapshot struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectId uuid.UUID      `gorm:"type:uuid;not null;index"`
	Content   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}

func (ContentSnapshot) TableName() string {
	return "content_snapshots"
}
