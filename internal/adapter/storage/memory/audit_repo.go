package memory

import (
	"context"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	db *DB
}

func (r *AuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.audit = append(r.db.audit, *entry)
	return nil
}
