package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmstock/internal/platform/db"
)

// PgRepository reads audit_logs from PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// TimelineWindow lists audit rows matching w, newest first.
func (r *PgRepository) TimelineWindow(ctx context.Context, w Window) ([]TimelineRow, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("audit repository not initialised")
	}
	query, args := buildWindowQuery(w)
	var out []TimelineRow
	err := db.WithReadOnlyTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
			var (
				t    TimelineRow
				meta []byte
			)
			if err := row.Scan(&t.ID, &t.At, &t.ActorID, &t.Action, &t.Entity, &t.EntityID, &meta); err != nil {
				return t, err
			}
			if len(meta) > 0 && string(meta) != "null" {
				if err := json.Unmarshal(meta, &t.Meta); err != nil {
					return t, fmt.Errorf("audit: decode meta %d: %w", t.ID, err)
				}
			}
			return t, nil
		})
		return err
	})
	return out, err
}

func buildWindowQuery(w Window) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(expr, len(args)))
	}
	if !w.From.IsZero() {
		add("occurred_at >= $%d", w.From)
	}
	if !w.To.IsZero() {
		add("occurred_at < $%d", w.To)
	}
	if w.Entity != "" {
		add("entity = $%d", w.Entity)
	}
	if w.EntityID != "" {
		add("entity_id = $%d", w.EntityID)
	}
	if w.Action != "" {
		add("action = $%d", w.Action)
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs")
	if len(clauses) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(clauses, " AND "))
	}
	args = append(args, w.Limit, w.Offset)
	fmt.Fprintf(&sb, " ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return sb.String(), args
}
