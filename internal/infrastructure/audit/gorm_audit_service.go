// Package audit records security events emitted by the access control plane.
package audit

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/internal/domain/service"
)

var _ service.AuditService = (*GormAuditService)(nil)

// GormAuditService provides a GORM-backed implementation of the AuditService.
// It stores audit events in a relational database.
type GormAuditService struct {
	db *gorm.DB
}

// OpenDatabase opens the audit database for driver (sqlite or postgres) and
// migrates the audit_events table.
func OpenDatabase(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported audit driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.AutoMigrate(&models.AuditEvent{}); err != nil {
		return nil, fmt.Errorf("migrate audit_events: %w", err)
	}
	return db, nil
}

// NewGormAuditService creates and configures a new GormAuditService.
func NewGormAuditService(db *gorm.DB) *GormAuditService {
	return &GormAuditService{db: db}
}

// LogEvent saves an AuditEvent to the database. Raw tokens are never stored.
func (s *GormAuditService) LogEvent(ctx context.Context, event models.AuditEvent) error {
	event = event.Redacted()
	return s.db.WithContext(ctx).Create(&event).Error
}

// ListByUser returns the newest events recorded for userID.
func (s *GormAuditService) ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// Close releases the underlying connection pool.
func (s *GormAuditService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
