package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"coi-notes-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestProjectMapper_Card(t *testing.T) {
	m := NewProjectMapper()
	deleted := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &entity.Card{
		Id:        uuid.New(),
		ProjectId: uuid.New(),
		Title:     "Neuron",
		Details:   []string{"dendrites", "axon"},
		DeletedAt: &deleted,
	}

	model := m.CardToModel(in)
	assert.True(t, model.DeletedAt.Valid)
	assert.Equal(t, []string{"dendrites", "axon"}, []string(model.Details))

	out := m.CardToEntity(model)
	assert.Equal(t, in.Details, out.Details)
	assert.True(t, out.IsDeleted)
	assert.Nil(t, out.UpdatedAt)
}

func TestProjectMapper_ProjectContent(t *testing.T) {
	m := NewProjectMapper()
	in := &entity.Project{Id: uuid.New(), Title: "t", Content: json.RawMessage(`{"title":"x","details":[]}`)}

	out := m.ProjectToEntity(m.ProjectToModel(in))

	assert.JSONEq(t, string(in.Content), string(out.Content))
	assert.True(t, out.HasContent())
	assert.False(t, (&entity.Project{}).HasContent())
	assert.Nil(t, m.ProjectToEntity(nil))
}
