package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ems/ems/internal/domain/hospital"
	"github.com/ems/ems/internal/domain/triage"
)

type caseRepoPG struct{ pool *pgxpool.Pool }

func NewCaseRepoPG(pool *pgxpool.Pool) CaseRepository { return &caseRepoPG{pool: pool} }

const caseCols = `id, attributes, priority_tier, resource_profile, status, assigned_hospital_id,
	claimed_by, claimed_at, reported_at, acknowledged_at, resolved_at, created_at, updated_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.Attributes, &c.PriorityTier, &c.Profile, &c.Status, &c.AssignedHospitalID,
		&c.ClaimedBy, &c.ClaimedAt, &c.ReportedAt, &c.AcknowledgedAt, &c.ResolvedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *caseRepoPG) Create(ctx context.Context, c *Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	stored, err := scanCase(tx.QueryRow(ctx, `
		INSERT INTO dispatch_case (id, attributes, priority_tier, resource_profile, status, reported_at)
		VALUES ($1,$2,$3,$4,$5, COALESCE($6, NOW()))
		RETURNING `+caseCols,
		c.ID, c.Attributes, c.PriorityTier, c.Profile, c.Status, nullableTime(c.ReportedAt)))
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO case_status_event (case_id, from_status, to_status, occurred_at)
		VALUES ($1, '', $2, $3)`,
		stored.ID, stored.Status, stored.ReportedAt); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	*c = *stored
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *caseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(r.pool.QueryRow(ctx, `SELECT `+caseCols+` FROM dispatch_case WHERE id = $1`, id))
}

func (r *caseRepoPG) List(ctx context.Context, status Status, limit, offset int) ([]*Case, int, error) {
	where, args := ``, []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dispatch_case`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT `+caseCols+` FROM dispatch_case`+where+
		` ORDER BY reported_at, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// Transition is the lifecycle compare-and-swap: the status predicate in
// the WHERE clause means a case moved concurrently is left alone and the
// caller told, never silently overwritten.
func (r *caseRepoPG) Transition(ctx context.Context, id uuid.UUID, from, to Status, change StatusChange) (*Case, error) {
	set := `status = $3, updated_at = NOW()`
	args := []interface{}{id, from, to}
	if change.AssignHospital != nil {
		args = append(args, *change.AssignHospital)
		set += fmt.Sprintf(`, assigned_hospital_id = $%d`, len(args))
	}
	if change.ClearHospital {
		set += `, assigned_hospital_id = NULL`
	}
	if change.AcknowledgedAt != nil {
		args = append(args, *change.AcknowledgedAt)
		set += fmt.Sprintf(`, acknowledged_at = $%d`, len(args))
	}
	if change.ResolvedAt != nil {
		args = append(args, *change.ResolvedAt)
		set += fmt.Sprintf(`, resolved_at = $%d`, len(args))
	}
	if change.ClearClaim {
		set += `, claimed_by = NULL, claimed_at = NULL`
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	c, err := scanCase(tx.QueryRow(ctx,
		`UPDATE dispatch_case SET `+set+` WHERE id = $1 AND status = $2 RETURNING `+caseCols, args...))
	if errors.Is(err, ErrNotFound) {
		return nil, r.transitionFailure(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO case_status_event (case_id, from_status, to_status, occurred_at)
		VALUES ($1, $2, $3, $4)`,
		id, from, to, c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *caseRepoPG) History(ctx context.Context, caseID uuid.UUID) ([]*StatusEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, case_id, from_status, to_status, occurred_at
		FROM case_status_event
		WHERE case_id = $1
		ORDER BY occurred_at, id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*StatusEvent
	for rows.Next() {
		var e StatusEvent
		if err := rows.Scan(&e.ID, &e.CaseID, &e.FromStatus, &e.ToStatus, &e.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// transitionFailure distinguishes a missing case from a lost CAS.
func (r *caseRepoPG) transitionFailure(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

func (r *caseRepoPG) UpdateTriage(ctx context.Context, id uuid.UUID, tier triage.PriorityTier, profile []hospital.ResourceKind) (*Case, error) {
	c, err := scanCase(r.pool.QueryRow(ctx, `
		UPDATE dispatch_case SET priority_tier = $2, resource_profile = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'reported'
		RETURNING `+caseCols,
		id, tier, profile))
	if errors.Is(err, ErrNotFound) {
		return nil, r.transitionFailure(ctx, id)
	}
	return c, err
}

func (r *caseRepoPG) Queue(ctx context.Context, limit int) ([]*Case, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+caseCols+` FROM dispatch_case
		WHERE status = 'reported'
		ORDER BY CASE priority_tier
			WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'moderate' THEN 2 ELSE 1
		END DESC, reported_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *caseRepoPG) Claim(ctx context.Context, id uuid.UUID, operator string, ttl time.Duration) (*Case, error) {
	c, err := scanCase(r.pool.QueryRow(ctx, `
		UPDATE dispatch_case SET claimed_by = $2, claimed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'reported'
		  AND (claimed_by IS NULL OR claimed_by = $2 OR claimed_at < NOW() - $3::interval)
		RETURNING `+caseCols,
		id, operator, ttl))
	if !errors.Is(err, ErrNotFound) {
		return c, err
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusReported {
		return nil, ErrInvalidTransition
	}
	return nil, ErrAlreadyClaimed
}

func (r *caseRepoPG) ReleaseClaim(ctx context.Context, id uuid.UUID, operator string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE dispatch_case SET claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND claimed_by = $2`,
		id, operator)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrNotClaimed
	}
	return nil
}

func (r *caseRepoPG) ExpireClaims(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE dispatch_case SET claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE status = 'reported' AND claimed_at IS NOT NULL AND claimed_at < $1`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
