package hospital

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =========== Hospital Repository ===========

type hospitalRepoPG struct{ pool *pgxpool.Pool }

func NewHospitalRepoPG(pool *pgxpool.Pool) HospitalRepository { return &hospitalRepoPG{pool: pool} }

const hospitalCols = `id, name, latitude, longitude, specialties, insurers, rating, created_at, updated_at`

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Latitude, &h.Longitude, &h.Specialties, &h.Insurers,
		&h.Rating, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &h, err
}

func (r *hospitalRepoPG) Create(ctx context.Context, h *Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO hospital (id, name, latitude, longitude, specialties, insurers, rating)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, h.Name, h.Latitude, h.Longitude, h.Specialties, h.Insurers, h.Rating)
	if err != nil {
		return err
	}
	for kind, rc := range h.Capacity {
		_, err = tx.Exec(ctx, `
			INSERT INTO hospital_capacity (hospital_id, resource_kind, total, available)
			VALUES ($1,$2,$3,$3)`,
			h.ID, kind, rc.Total)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *hospitalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	h, err := scanHospital(r.pool.QueryRow(ctx, `SELECT `+hospitalCols+` FROM hospital WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	h.Capacity, err = loadCapacity(ctx, r.pool, id)
	return h, err
}

func (r *hospitalRepoPG) List(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM hospital`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+hospitalCols+` FROM hospital ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, h)
	}
	for _, h := range items {
		if h.Capacity, err = loadCapacity(ctx, r.pool, h.ID); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (r *hospitalRepoPG) SetTotal(ctx context.Context, hospitalID uuid.UUID, kind ResourceKind, total int) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO hospital_capacity (hospital_id, resource_kind, total, available)
		VALUES ($1,$2,$3,$3)
		ON CONFLICT (hospital_id, resource_kind) DO UPDATE
		SET available = LEAST(GREATEST(hospital_capacity.available + $3 - hospital_capacity.total, 0), $3),
		    total = $3`,
		hospitalID, kind, total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func loadCapacity(ctx context.Context, q querier, hospitalID uuid.UUID) (Capacity, error) {
	rows, err := q.Query(ctx, `SELECT resource_kind, total, available FROM hospital_capacity WHERE hospital_id = $1`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := make(Capacity)
	for rows.Next() {
		var kind ResourceKind
		var rc ResourceCapacity
		if err := rows.Scan(&kind, &rc.Total, &rc.Available); err != nil {
			return nil, err
		}
		snap[kind] = rc
	}
	return snap, rows.Err()
}

// =========== Reservation Repository ===========

type reservationRepoPG struct{ pool *pgxpool.Pool }

func NewReservationRepoPG(pool *pgxpool.Pool) ReservationRepository {
	return &reservationRepoPG{pool: pool}
}

const reservationCols = `id, case_id, hospital_id, resource_kind, created_at, released_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	err := row.Scan(&r.ID, &r.CaseID, &r.HospitalID, &r.Kind, &r.CreatedAt, &r.ReleasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &r, err
}

func (r *reservationRepoPG) Snapshot(ctx context.Context, hospitalID uuid.UUID) (Capacity, error) {
	snap, err := loadCapacity(ctx, r.pool, hospitalID)
	if err != nil {
		return nil, err
	}
	if len(snap) == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM hospital WHERE id = $1)`, hospitalID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
	}
	return snap, nil
}

func (r *reservationRepoPG) Reserve(ctx context.Context, hospitalID, caseID uuid.UUID, kind ResourceKind) (*Reservation, error) {
	rs, err := r.ReserveAll(ctx, hospitalID, caseID, []ResourceKind{kind})
	if err != nil {
		return nil, err
	}
	return rs[0], nil
}

// ReserveAll decrements every requested counter inside one transaction.
// The guarded UPDATE is the atomicity point: a row is only affected when
// available > 0, and the row lock serializes concurrent reserves for the
// same (hospital, kind), so the last unit goes to exactly one caller.
func (r *reservationRepoPG) ReserveAll(ctx context.Context, hospitalID, caseID uuid.UUID, kinds []ResourceKind) ([]*Reservation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	out := make([]*Reservation, 0, len(kinds))
	for _, kind := range kinds {
		tag, err := tx.Exec(ctx, `
			UPDATE hospital_capacity SET available = available - 1
			WHERE hospital_id = $1 AND resource_kind = $2 AND available > 0`,
			hospitalID, kind)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			// Rollback undoes any decrements already taken in this call.
			return nil, fmt.Errorf("%s at hospital %s: %w", kind, hospitalID, ErrOutOfCapacity)
		}

		res, err := scanReservation(tx.QueryRow(ctx, `
			INSERT INTO reservation (id, case_id, hospital_id, resource_kind)
			VALUES ($1,$2,$3,$4)
			RETURNING `+reservationCols,
			uuid.New(), caseID, hospitalID, kind))
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reservationRepoPG) Release(ctx context.Context, reservationID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	res, err := scanReservation(tx.QueryRow(ctx, `SELECT `+reservationCols+` FROM reservation WHERE id = $1 FOR UPDATE`, reservationID))
	if err != nil {
		return err
	}
	if res.ReleasedAt != nil {
		return ErrAlreadyReleased
	}

	if _, err := tx.Exec(ctx, `UPDATE reservation SET released_at = NOW() WHERE id = $1`, reservationID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE hospital_capacity SET available = available + 1
		WHERE hospital_id = $1 AND resource_kind = $2 AND available < total`,
		res.HospitalID, res.Kind)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *reservationRepoPG) ReleaseByCase(ctx context.Context, caseID uuid.UUID) error {
	return r.releaseOpen(ctx, `SELECT id FROM reservation WHERE case_id = $1 AND released_at IS NULL`, caseID)
}

func (r *reservationRepoPG) ReleaseByCaseAtHospital(ctx context.Context, caseID, hospitalID uuid.UUID) error {
	return r.releaseOpen(ctx,
		`SELECT id FROM reservation WHERE case_id = $1 AND hospital_id = $2 AND released_at IS NULL`,
		caseID, hospitalID)
}

func (r *reservationRepoPG) releaseOpen(ctx context.Context, query string, args ...interface{}) error {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.Release(ctx, id); err != nil && !errors.Is(err, ErrAlreadyReleased) {
			return err
		}
	}
	return nil
}

func (r *reservationRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Reservation, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reservation WHERE hospital_id = $1`, hospitalID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+reservationCols+` FROM reservation WHERE hospital_id = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`, hospitalID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, res)
	}
	return items, total, nil
}
