package mapper

import (
	"time"

	"gorm.io/gorm"
)

func updatedAtPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deletedAtPtr(d gorm.DeletedAt) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

func updatedAtValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func toDeletedAt(deletedAt *time.Time, isDeleted bool) gorm.DeletedAt {
	if deletedAt != nil {
		return gorm.DeletedAt{Time: *deletedAt, Valid: true}
	}
	if isDeleted {
		return gorm.DeletedAt{Time: time.Now(), Valid: true}
	}
	return gorm.DeletedAt{}
}
