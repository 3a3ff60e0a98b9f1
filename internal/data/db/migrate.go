package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/coursesync-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.AllModels()...)
}

// EnsureProgressIndexes adds postgres-only indexes that gorm tags cannot express.
func EnsureProgressIndexes(db *gorm.DB) error {
	// Dashboard listing per user.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_course_progress_user_updated
		ON course_progress (user_id, updated_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_course_progress_user_updated: %w", err)
	}

	// Unread notifications per recipient.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_notifications_recipient_unread
		ON notifications (recipient_id, created_at DESC)
		WHERE is_read = false;
	`).Error; err != nil {
		return fmt.Errorf("create idx_notifications_recipient_unread: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...", "driver", s.driver)
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if s.driver != "postgres" {
		return nil
	}
	if err := EnsureProgressIndexes(s.db); err != nil {
		s.log.Error("Progress index migration failed", "error", err)
		return err
	}
	return nil
}
