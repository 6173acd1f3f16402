package unitofwork

import (
	"context"

	"gorm.io/gorm"
)

type gormRepositoryFactory struct {
	db *gorm.DB
}

func NewRepositoryFactory(db *gorm.DB) RepositoryFactory {
	return &gormRepositoryFactory{db: db}
}

// NewUnitOfWork is short lived: one per pipeline stage that writes.
func (f *gormRepositoryFactory) NewUnitOfWork(ctx context.Context) UnitOfWork {
	return NewUnitOfWork(ctx, f.db)
}
