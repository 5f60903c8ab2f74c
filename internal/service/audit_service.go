package service

import (
	"context"
	"time"

	"pix-wallet-service/internal/core/domain"
	"pix-wallet-service/internal/core/ports"

	"github.com/rs/zerolog"
)

type auditService struct {
	repo    ports.AuditRepository
	log     zerolog.Logger
	entries chan *domain.AuditLog
	done    chan struct{}
}

// NewAuditService creates a new audit service. Entries are persisted by
// a single background writer so request paths never block on the audit
// table. If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	s := &auditService{
		repo:    repo,
		log:     log,
		entries: make(chan *domain.AuditLog, 256),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Log records an audit entry asynchronously (fire-and-forget). When the
// buffer is full the entry is dropped rather than stalling the request.
func (s *auditService) Log(ctx context.Context, entry *domain.AuditLog) {
	select {
	case s.entries <- entry:
	default:
		s.log.Warn().Str("action", string(entry.Action)).Msg("audit buffer full, entry dropped")
	}
}

// Close stops the writer after draining buffered entries.
func (s *auditService) Close() {
	close(s.entries)
	<-s.done
}

func (s *auditService) run() {
	defer close(s.done)
	for entry := range s.entries {
		s.log.Info().
			Str("action", string(entry.Action)).
			Str("resource_type", entry.ResourceType).
			Str("resource_id", entry.ResourceID).
			Str("ip", entry.IPAddress).
			Msg("audit")

		if s.repo == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
		cancel()
	}
}
