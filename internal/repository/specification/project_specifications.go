package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByProjectID struct {
	ProjectID uuid.UUID
}

func (s ByProjectID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("project_id = ?", s.ProjectID)
}

// NotExcluded drops cards the user hid from the model.
type NotExcluded struct{}

func (s NotExcluded) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("exclude = ?", false)
}
