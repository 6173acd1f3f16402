package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/repository/contract"
	"coi-notes-be/internal/repository/specification"
	"coi-notes-be/internal/repository/unitofwork"
	"coi-notes-be/pkg/events"
	"coi-notes-be/pkg/llm"

	"github.com/google/uuid"
)

// memStore is a fake document store shared by every unit of work.
type memStore struct {
	mu        sync.Mutex
	projects  map[uuid.UUID]*entity.Project
	messages  []*entity.ChatMessage
	cards     []*entity.Card
	snapshots []*entity.ContentSnapshot

	failMessages error
	failContent  error
	commits      int
	rollbacks    int
}

func newMemStore() *memStore {
	return &memStore{projects: make(map[uuid.UUID]*entity.Project)}
}

func (s *memStore) NewUnitOfWork(context.Context) unitofwork.UnitOfWork {
	return &memUoW{store: s}
}

func (s *memStore) addProject(p *entity.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.Id] = p
}

func (s *memStore) project(id uuid.UUID) *entity.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[id]
}

func (s *memStore) chatMessages() []*entity.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.ChatMessage(nil), s.messages...)
}

func (s *memStore) allCards() []*entity.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.Card(nil), s.cards...)
}

type memUoW struct {
	store *memStore
}

func (u *memUoW) Begin(context.Context) error { return nil }

func (u *memUoW) Commit() error {
	u.store.mu.Lock()
	u.store.commits++
	u.store.mu.Unlock()
	return nil
}

func (u *memUoW) Rollback() error {
	u.store.mu.Lock()
	u.store.rollbacks++
	u.store.mu.Unlock()
	return nil
}

func (u *memUoW) ProjectRepository() contract.ProjectRepository {
	return &memProjects{u.store}
}

func (u *memUoW) ChatMessageRepository() contract.ChatMessageRepository {
	return &memMessages{u.store}
}

func (u *memUoW) CardRepository() contract.CardRepository {
	return &memCards{u.store}
}

func (u *memUoW) ContentSnapshotRepository() contract.ContentSnapshotRepository {
	return &memSnapshots{u.store}
}

type filter struct {
	id, userId, projectId uuid.UUID
	notExcluded           bool
	limit                 int
	desc                  bool
}

func readSpecs(specs []specification.Specification) filter {
	var f filter
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			f.id = s.ID
		case specification.ByUserID:
			f.userId = s.UserID
		case specification.ByProjectID:
			f.projectId = s.ProjectID
		case specification.NotExcluded:
			f.notExcluded = true
		case specification.Limit:
			f.limit = s.N
		case specification.OrderBy:
			f.desc = s.Desc
		}
	}
	return f
}

type memProjects struct{ s *memStore }

func (r *memProjects) Create(_ context.Context, p *entity.Project) error {
	r.s.addProject(p)
	return nil
}

func (r *memProjects) UpdateContent(_ context.Context, id uuid.UUID, content json.RawMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failContent != nil {
		return r.s.failContent
	}
	p, ok := r.s.projects[id]
	if !ok {
		return errors.New("record not found")
	}
	p.Content = content
	return nil
}

func (r *memProjects) FindOne(_ context.Context, specs ...specification.Specification) (*entity.Project, error) {
	f := readSpecs(specs)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[f.id]
	if !ok || (f.userId != uuid.Nil && p.UserId != f.userId) {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

type memMessages struct{ s *memStore }

func (r *memMessages) CreateBatch(_ context.Context, messages []*entity.ChatMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failMessages != nil {
		return r.s.failMessages
	}
	r.s.messages = append(r.s.messages, messages...)
	return nil
}

func (r *memMessages) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	f := readSpecs(specs)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ChatMessage
	for _, m := range r.s.messages {
		if m.ProjectId == f.projectId {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.desc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.limit > 0 && len(out) > f.limit {
		out = out[:f.limit]
	}
	return out, nil
}

type memCards struct{ s *memStore }

func (r *memCards) CreateBatch(_ context.Context, cards []*entity.Card) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.cards = append(r.s.cards, cards...)
	return nil
}

func (r *memCards) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Card, error) {
	f := readSpecs(specs)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Card
	for _, c := range r.s.cards {
		if c.ProjectId != f.projectId || (f.notExcluded && c.Exclude) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

type memSnapshots struct{ s *memStore }

func (r *memSnapshots) Create(_ context.Context, snap *entity.ContentSnapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.snapshots = append(r.s.snapshots, snap)
	return nil
}

func (r *memSnapshots) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.ContentSnapshot, error) {
	f := readSpecs(specs)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ContentSnapshot
	for _, snap := range r.s.snapshots {
		if snap.ProjectId == f.projectId {
			out = append(out, snap)
		}
	}
	return out, nil
}

// fakeProvider streams scripted fragments and answers Generate with a fixed result.
type fakeProvider struct {
	mu        sync.Mutex
	fragments []string
	sources   []llm.GroundingChunk
	streamErr error

	content    string
	contentErr error

	streamReqs   []*llm.Request
	generateReqs []*llm.Request
}

func (p *fakeProvider) GenerateStream(ctx context.Context, req *llm.Request, onFragment llm.FragmentHandler) (*llm.Result, error) {
	p.mu.Lock()
	p.streamReqs = append(p.streamReqs, req)
	p.mu.Unlock()

	if p.streamErr != nil {
		return nil, p.streamErr
	}
	var text string
	for _, f := range p.fragments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := onFragment(f); err != nil {
			return nil, err
		}
		text += f
	}
	return &llm.Result{Text: text, GroundingChunks: p.sources}, nil
}

func (p *fakeProvider) Generate(_ context.Context, req *llm.Request) (*llm.Result, error) {
	p.mu.Lock()
	p.generateReqs = append(p.generateReqs, req)
	p.mu.Unlock()

	if p.contentErr != nil {
		return nil, p.contentErr
	}
	return &llm.Result{Text: p.content}, nil
}

func (p *fakeProvider) generateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.generateReqs)
}

type recordingPublisher struct {
	published chan events.Event
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{published: make(chan events.Event, 8)}
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.published <- event
	return nil
}
