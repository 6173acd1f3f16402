package mapper

import (
	"encoding/json"

	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/model"

	"gorm.io/datatypes"
)

type ProjectMapper struct{}

func NewProjectMapper() *ProjectMapper {
	return &ProjectMapper{}
}

// Project Mappers

func (m *ProjectMapper) ProjectToEntity(p *model.Project) *entity.Project {
	if p == nil {
		return nil
	}

	return &entity.Project{
		Id:        p.Id,
		UserId:    p.UserId,
		Title:     p.Title,
		Content:   json.RawMessage(p.Content),
		CreatedAt: p.CreatedAt,
		UpdatedAt: updatedAtPtr(p.UpdatedAt),
		DeletedAt: deletedAtPtr(p.DeletedAt),
		IsDeleted: p.DeletedAt.Valid,
	}
}

func (m *ProjectMapper) ProjectToModel(p *entity.Project) *model.Project {
	if p == nil {
		return nil
	}

	return &model.Project{
		Id:        p.Id,
		UserId:    p.UserId,
		Title:     p.Title,
		Content:   datatypes.JSON(p.Content),
		CreatedAt: p.CreatedAt,
		UpdatedAt: updatedAtValue(p.UpdatedAt),
		DeletedAt: toDeletedAt(p.DeletedAt, p.IsDeleted),
	}
}

// Card Mappers

func (m *ProjectMapper) CardToEntity(c *model.Card) *entity.Card {
	if c == nil {
		return nil
	}

	return &entity.Card{
		Id:        c.Id,
		ProjectId: c.ProjectId,
		Title:     c.Title,
		Details:   []string(c.Details),
		SourceURI: c.SourceURI,
		Exclude:   c.Exclude,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAtPtr(c.UpdatedAt),
		DeletedAt: deletedAtPtr(c.DeletedAt),
		IsDeleted: c.DeletedAt.Valid,
	}
}

func (m *ProjectMapper) CardToModel(c *entity.Card) *model.Card {
	if c == nil {
		return nil
	}

	return &model.Card{
		Id:        c.Id,
		ProjectId: c.ProjectId,
		Title:     c.Title,
		Details:   datatypes.NewJSONSlice(c.Details),
		SourceURI: c.SourceURI,
		Exclude:   c.Exclude,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAtValue(c.UpdatedAt),
		DeletedAt: toDeletedAt(c.DeletedAt, c.IsDeleted),
	}
}

// Snapshot Mappers

func (m *ProjectMapper) SnapshotToEntity(s *model.ContentSnapshot) *entity.ContentSnapshot {
	if s == nil {
		return nil
	}

	return &entity.ContentSnapshot{
		Id:        s.Id,
		ProjectId: s.ProjectId,
		Content:   json.RawMessage(s.Content),
		CreatedAt: s.CreatedAt,
	}
}

func (m *ProjectMapper) SnapshotToModel(s *entity.ContentSnapshot) *model.ContentSnapshot {
	if s == nil {
		return nil
	}

	return &model.ContentSnapshot{
		Id:        s.Id,
		ProjectId: s.ProjectId,
		Content:   datatypes.JSON(s.Content),
		CreatedAt: s.CreatedAt,
	}
}
