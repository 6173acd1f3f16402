package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Card struct {
	Id        uuid.UUID
	ProjectId uuid.UUID
	Title     string
	Details   []string
	SourceURI string
	Exclude   bool
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}

// Key identifies a card by content, used to skip duplicates.
func (c *Card) Key() string {
	return strings.TrimSpace(c.Title) + "\x00" + strings.Join(c.Details, "\x00")
}
