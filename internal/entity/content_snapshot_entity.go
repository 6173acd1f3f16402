package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ContentSnapshot struct {
	Id        uuid.UUID
	ProjectId uuid.UUID
	Content   json.RawMessage
	CreatedAt time.Time
}
