package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Card struct {
	Id        uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectId uuid.UUID                   `gorm:"type:uuid;not null;index"`
	Title     string                      `gorm:"type:text;not null"`
	Details   datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	SourceURI string                      `gorm:"type:text"`
	Exclude   bool                        `gorm:"not null;default:false"`
	CreatedAt time.Time                   `gorm:"autoCreateTime"`
	UpdatedAt time.Time                   `gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt              `gorm:"index"`
}

func (Card) TableName() string {
	return "cards"
}
