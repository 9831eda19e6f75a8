package service

import (
	"context"
	"sync"
	"time"

	"agent-wallet-bridge/internal/core/domain"
	"agent-wallet-bridge/internal/core/ports"
	"agent-wallet-bridge/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	auditBuffer       = 256
	auditWriteTimeout = 5 * time.Second
)

var _ ports.AuditService = (*AuditService)(nil)

// AuditService logs every entry immediately and persists it from a single
// background writer. Callers never wait on the database; when the buffer is
// full the entry is kept in the log only.
type AuditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	entries chan *domain.AuditLog
	done    chan struct{}
}

// NewAuditService starts the writer. A nil repo keeps entries in the log only.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditService {
	s := &AuditService{
		repo:    repo,
		log:     log,
		entries: make(chan *domain.AuditLog, auditBuffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AuditService) Log(_ context.Context, entry *domain.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.log.Info().
		Str("actor", entry.Actor).
		Str("action", string(entry.Action)).
		Str("resource_type", entry.ResourceType).
		Str("resource_id", entry.ResourceID).
		Str("ip", entry.IPAddress).
		Msg("audit")

	if s.repo == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Warn().Str("action", string(entry.Action)).Msg("audit writer closed, entry not persisted")
		return
	}
	select {
	case s.entries <- entry:
	default:
		metrics.AuditDropped.Inc()
		s.log.Warn().Str("action", string(entry.Action)).Msg("audit buffer full, entry not persisted")
	}
}

// Close stops accepting entries and waits for the buffered ones to be
// written, or for ctx to expire.
func (s *AuditService) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.entries)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AuditService) run() {
	defer close(s.done)
	for entry := range s.entries {
		if s.repo == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
		cancel()
	}
}
