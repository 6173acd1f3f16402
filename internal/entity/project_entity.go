package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Project struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	Title     string
	Content   json.RawMessage // hierarchical notes: {"title": ..., "details": [...]}
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}

// HasContent reports whether the project carries a non-empty hierarchy.
func (p *Project) HasContent() bool {
	switch string(p.Content) {
	case "", "null", "{}":
		return false
	}
	return true
}
