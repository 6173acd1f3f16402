package unitofwork

import (
	"context"

	"coi-notes-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ProjectRepository() contract.ProjectRepository
	ChatMessageRepository() contract.ChatMessageRepository
	CardRepository() contract.CardRepository
	ContentSnapshotRepository() contract.ContentSnapshotRepository
}

// WithTransaction runs fn inside Begin/Commit and rolls back on error.
func WithTransaction(ctx context.Context, uow UnitOfWork, fn func(uow UnitOfWork) error) error {
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	if err := fn(uow); err != nil {
		_ = uow.Rollback()
		return err
	}
	return uow.Commit()
}
