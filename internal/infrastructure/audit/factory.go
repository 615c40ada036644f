package audit

import (
	"context"
	"io"

	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

// Service is the buffered audit pipeline used by the server.
type Service struct {
	*AsyncAuditor
	sink io.Closer
}

// NewService builds the configured sink behind an AsyncAuditor. It returns nil, nil
// when auditing is disabled.
func NewService(cfg config.AuditConfig, kafkaCfg config.KafkaConfig, drops DropRecorder, log logger.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var (
		sink   service.AuditService
		closer io.Closer
	)
	switch cfg.Sink {
	case "gorm":
		db, err := OpenDatabase(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		g := NewGormAuditService(db)
		sink, closer = g, g
	case "kafka":
		p := NewKafkaProducer(kafkaCfg, log)
		sink, closer = p, p
	default:
		return nil, errors.ErrInvalidConfig("unknown audit sink: " + cfg.Sink)
	}

	log.Info(context.Background(), "Audit sink configured", logger.String("sink", cfg.Sink))
	return &Service{AsyncAuditor: NewAsyncAuditor(sink, cfg.BufferSize, drops, log), sink: closer}, nil
}

// Close drains pending events and closes the sink.
func (s *Service) Close(ctx context.Context) error {
	drainErr := s.AsyncAuditor.Close(ctx)
	if err := s.sink.Close(); err != nil {
		return err
	}
	return drainErr
}
