package unitofwork

import (
	"context"
	"errors"

	"coi-notes-be/internal/repository/contract"
	"coi-notes-be/internal/repository/implementation"

	"gorm.io/gorm"
)

var (
	ErrTxActive   = errors.New("unit of work: transaction already started")
	ErrTxInactive = errors.New("unit of work: no active transaction")
)

// gormUnitOfWork hands out repositories bound to either the base session or
// the open transaction. It is not safe for concurrent use.
type gormUnitOfWork struct {
	db *gorm.DB
	tx *gorm.DB
}

func NewUnitOfWork(ctx context.Context, db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db.WithContext(ctx)}
}

func (u *gormUnitOfWork) session() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *gormUnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return ErrTxActive
	}
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	u.tx = tx
	return nil
}

func (u *gormUnitOfWork) Commit() error {
	if u.tx == nil {
		return ErrTxInactive
	}
	tx := u.tx
	u.tx = nil
	return tx.Commit().Error
}

func (u *gormUnitOfWork) Rollback() error {
	if u.tx == nil {
		return ErrTxInactive
	}
	tx := u.tx
	u.tx = nil
	return tx.Rollback().Error
}

func (u *gormUnitOfWork) ProjectRepository() contract.ProjectRepository {
	return implementation.NewProjectRepository(u.session())
}

func (u *gormUnitOfWork) ChatMessageRepository() contract.ChatMessageRepository {
	return implementation.NewChatMessageRepository(u.session())
}

func (u *gormUnitOfWork) CardRepository() contract.CardRepository {
	return implementation.NewCardRepository(u.session())
}

func (u *gormUnitOfWork) ContentSnapshotRepository() contract.ContentSnapshotRepository {
	return implementation.NewContentSnapshotRepository(u.session())
}
