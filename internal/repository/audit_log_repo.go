package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
)

const auditColumns = `id, entity_type, entity_id, action, actor_id, timestamp,
	previous_value, new_value, notes`

type AuditListFilter struct {
	EntityType string
	EntityID   int64
	ActorID    int64
	Page       int
	Limit      int
}

type AuditLogRepository struct {
	db DBTX
}

func NewAuditLogRepository(db DBTX) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func scanAuditLog(row interface{ Scan(dest ...any) error }, entry *models.AuditLog) error {
	return row.Scan(
		&entry.ID,
		&entry.EntityType,
		&entry.EntityID,
		&entry.Action,
		&entry.ActorID,
		&entry.Timestamp,
		&entry.PreviousValue,
		&entry.NewValue,
		&entry.Notes,
	)
}

// Insert appends one audit entry. There is deliberately no update or delete:
// the table is append-only.
func (r *AuditLogRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (entity_type, entity_id, action, actor_id, timestamp,
			previous_value, new_value, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	return r.db.QueryRow(ctx, query,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		entry.ActorID,
		entry.Timestamp,
		entry.PreviousValue,
		entry.NewValue,
		entry.Notes,
	).Scan(&entry.ID)
}

func (r *AuditLogRepository) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]models.AuditLog, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY timestamp DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.AuditLog, 0)
	for rows.Next() {
		var entry models.AuditLog
		if err := scanAuditLog(rows, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *AuditLogRepository) List(ctx context.Context, filter AuditListFilter) ([]models.AuditLog, error) {
	args := []any{}
	whereParts := []string{}

	if entityType := strings.TrimSpace(filter.EntityType); entityType != "" {
		args = append(args, entityType)
		whereParts = append(whereParts, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.EntityID > 0 {
		args = append(args, filter.EntityID)
		whereParts = append(whereParts, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.ActorID > 0 {
		args = append(args, filter.ActorID)
		whereParts = append(whereParts, fmt.Sprintf("actor_id = $%d", len(args)))
	}

	where := ""
	if len(whereParts) > 0 {
		where = "WHERE " + strings.Join(whereParts, " AND ")
	}

	limitClause := ""
	if filter.Limit > 0 {
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.Limit
		}
		limitClause = fmt.Sprintf("LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_logs
		%s
		ORDER BY timestamp DESC, id DESC
		%s
	`, auditColumns, where, limitClause)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.AuditLog, 0)
	for rows.Next() {
		var entry models.AuditLog
		if err := scanAuditLog(rows, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
