package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens (or creates) the session database at path and migrates it.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite serialises writers; one connection also keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := db.AutoMigrate(&Session{}, &FileRecord{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// SQLRegistry stores sessions through gorm.
type SQLRegistry struct {
	db     *gorm.DB
	limits Limits
	now    func() time.Time
}

var _ Registry = (*SQLRegistry)(nil)

func NewSQLRegistry(db *gorm.DB, limits Limits) *SQLRegistry {
	return &SQLRegistry{
		db:     db,
		limits: limits.withDefaults(),
		now:    time.Now,
	}
}

func (r *SQLRegistry) Create(ctx context.Context, code, senderName string, files []FileRecord) (*Session, error) {
	now := r.now().UTC()
	s := &Session{
		Code:         code,
		SenderName:   senderName,
		Files:        make([]FileRecord, len(files)),
		CreatedAt:    now,
		ExpiresAt:    now.Add(r.limits.TTL),
		MaxDownloads: r.limits.MaxDownloads,
	}
	for i, f := range files {
		f.SessionCode = code
		s.Files[i] = f
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Session
		err := tx.First(&existing, "code = ?", code).Error
		switch {
		case err == nil && !existing.Expired(now):
			return fmt.Errorf("%w: %s", ErrExists, code)
		case err == nil:
			if err := deleteSession(tx, code); err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Create(s).Error
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SQLRegistry) Get(ctx context.Context, code string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).Preload("Files").First(&s, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if err != nil {
		return nil, err
	}

	if s.Expired(r.now()) {
		if err := deleteSession(r.db.WithContext(ctx), code); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return &s, nil
}

// IncrementDownloadCount bumps the counter in a single conditional update so
// concurrent downloads cannot exceed the cap.
func (r *SQLRegistry) IncrementDownloadCount(ctx context.Context, code string) (*Session, error) {
	now := r.now().UTC()
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("code = ? AND download_count < max_downloads AND expires_at > ?", code, now).
		Update("download_count", gorm.Expr("download_count + 1"))
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		s, err := r.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		if s.Exhausted() {
			return nil, fmt.Errorf("%w: %s", ErrLimitExceeded, code)
		}
		return nil, fmt.Errorf("failed to increment download count for %s", code)
	}
	return r.Get(ctx, code)
}

func (r *SQLRegistry) Delete(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteSession(tx, code)
	})
}

func (r *SQLRegistry) CleanupExpired(ctx context.Context) (int, error) {
	now := r.now().UTC()
	removed := 0

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var codes []string
		if err := tx.Model(&Session{}).Where("expires_at <= ?", now).Pluck("code", &codes).Error; err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		if err := tx.Where("session_code IN ?", codes).Delete(&FileRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("code IN ?", codes).Delete(&Session{})
		if res.Error != nil {
			return res.Error
		}
		removed = int(res.RowsAffected)
		return nil
	})
	return removed, err
}

func deleteSession(tx *gorm.DB, code string) error {
	if err := tx.Where("session_code = ?", code).Delete(&FileRecord{}).Error; err != nil {
		return err
	}
	return tx.Where("code = ?", code).Delete(&Session{}).Error
}
