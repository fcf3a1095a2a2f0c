package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL. Per-tuple serialization uses
// transaction scoped advisory locks; the bookings_no_overlap exclusion constraint
// backs the non-overlap invariant at the storage level.
type PostgresStore struct {
	reader
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgresStore(pool *db.Pool, outboxRepo *outbox.Repository) *PostgresStore {
	return &PostgresStore{reader: reader{q: pool}, pool: pool, outbox: outboxRepo}
}

func (s *PostgresStore) InTx(ctx context.Context, keys []model.TupleKey, fn func(tx Tx) error) error {
	sorted := model.SortKeys(append([]model.TupleKey(nil), keys...))
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		for _, k := range sorted {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k.String()); err != nil {
				return fmt.Errorf("lock %s: %w", k, err)
			}
		}
		return fn(&pgTx{reader: reader{q: tx, forUpdate: true}, tx: tx, outbox: s.outbox})
	})
}

func (s *PostgresStore) DueForSweep(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE (status = 'pending' AND start_time <= $1)
			OR (status = 'confirmed' AND end_time <= $1)
		ORDER BY start_time ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *PostgresStore) ClinicConfig(ctx context.Context, tenantID string) (model.ClinicScheduleConfig, bool, error) {
	var cfg model.ClinicScheduleConfig
	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id, default_appointment_minutes, slot_interval_minutes, cancellation_hours, timezone, updated_at
		FROM clinic_schedule_config
		WHERE tenant_id = $1
	`, tenantID).Scan(&cfg.TenantID, &cfg.DefaultAppointmentMinutes, &cfg.SlotIntervalMinutes,
		&cfg.CancellationHours, &cfg.Timezone, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ClinicScheduleConfig{}, false, nil
	}
	if err != nil {
		return model.ClinicScheduleConfig{}, false, err
	}
	return cfg, true, nil
}

func (s *PostgresStore) UpsertClinicConfig(ctx context.Context, cfg model.ClinicScheduleConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clinic_schedule_config
			(tenant_id, default_appointment_minutes, slot_interval_minutes, cancellation_hours, timezone, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tenant_id) DO UPDATE SET
			default_appointment_minutes = EXCLUDED.default_appointment_minutes,
			slot_interval_minutes = EXCLUDED.slot_interval_minutes,
			cancellation_hours = EXCLUDED.cancellation_hours,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`, cfg.TenantID, cfg.DefaultAppointmentMinutes, cfg.SlotIntervalMinutes, cfg.CancellationHours, cfg.Timezone)
	return err
}

func (s *PostgresStore) UpsertProfessional(ctx context.Context, tenantID, professionalID, displayName string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO professionals (tenant_id, professional_id, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, professional_id) DO UPDATE SET display_name = EXCLUDED.display_name
	`, tenantID, professionalID, displayName)
	return err
}

type pgTx struct {
	reader
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, tenant_id, professional_id, booking_date, start_time, end_time, duration_minutes, status, idempotency_key)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, b.ID, b.TenantID, b.ProfessionalID, b.Date.String(), b.StartTime, b.EndTime(), b.DurationMinutes,
		string(b.Status), b.IdempotencyKey).Scan(&b.CreatedAt, &b.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) UpdateBooking(ctx context.Context, b model.Booking) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $3,
			cancel_reason = $4,
			late_cancellation = $5,
			cancelled_at = $6,
			updated_at = $7
		WHERE id = $1 AND tenant_id = $2
	`, b.ID, b.TenantID, string(b.Status), b.CancelReason, b.LateCancellation, b.CancelledAt, b.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertBlackout(ctx context.Context, b *model.BlackoutInterval) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO blackouts (id, tenant_id, professional_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, b.ID, b.TenantID, b.ProfessionalID, b.Start, b.End, b.Reason).Scan(&b.CreatedAt)
	return mapError(err)
}

func (t *pgTx) DeleteBlackout(ctx context.Context, tenantID, id string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM blackouts WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) ReplaceWorkingWindows(ctx context.Context, tenantID, professionalID string, windows []model.WorkingWindow) error {
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM working_windows WHERE tenant_id = $1 AND professional_id = $2
	`, tenantID, professionalID); err != nil {
		return err
	}
	if len(windows) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(windows))
	for _, w := range windows {
		rows = append(rows, []any{tenantID, professionalID, int16(w.Weekday), w.OpenMinute, w.CloseMinute})
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"working_windows"},
		[]string{"tenant_id", "professional_id", "weekday", "open_minute", "close_minute"},
		pgx.CopyFromRows(rows),
	)
	return mapError(err)
}

func (t *pgTx) Enqueue(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

// reader implements Reader over a pool or a transaction. Inside a transaction
// single-booking reads take row locks.
type reader struct {
	q         querier
	forUpdate bool
}

func (r reader) ProfessionalExists(ctx context.Context, tenantID, professionalID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM professionals WHERE tenant_id = $1 AND professional_id = $2)
	`, tenantID, professionalID).Scan(&exists)
	return exists, err
}

func (r reader) WorkingWindows(ctx context.Context, tenantID, professionalID string) ([]model.WorkingWindow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT weekday, open_minute, close_minute
		FROM working_windows
		WHERE tenant_id = $1 AND professional_id = $2
		ORDER BY weekday, open_minute
	`, tenantID, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []model.WorkingWindow
	for rows.Next() {
		w := model.WorkingWindow{TenantID: tenantID, ProfessionalID: professionalID}
		var weekday int16
		if err := rows.Scan(&weekday, &w.OpenMinute, &w.CloseMinute); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(weekday)
		windows = append(windows, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}

func (r reader) BlackoutsOverlapping(ctx context.Context, tenantID, professionalID string, span interval.Interval) ([]model.BlackoutInterval, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id::text, tenant_id, professional_id, start_time, end_time, reason, created_at
		FROM blackouts
		WHERE tenant_id = $1
			AND professional_id = $2
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time ASC
	`, tenantID, professionalID, span.Start, span.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BlackoutInterval
	for rows.Next() {
		b, err := scanBlackout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r reader) GetBlackout(ctx context.Context, tenantID, id string) (model.BlackoutInterval, error) {
	b, err := scanBlackout(r.q.QueryRow(ctx, `
		SELECT id::text, tenant_id, professional_id, start_time, end_time, reason, created_at
		FROM blackouts
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
	if err != nil {
		return model.BlackoutInterval{}, mapError(err)
	}
	return b, nil
}

func (r reader) OccupyingBookings(ctx context.Context, tenantID, professionalID string, span interval.Interval) ([]model.Booking, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1
			AND professional_id = $2
			AND status <> 'cancelled'
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time ASC
	`, tenantID, professionalID, span.Start, span.End)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r reader) GetBooking(ctx context.Context, tenantID, id string) (model.Booking, error) {
	sql := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 AND tenant_id = $2`
	if r.forUpdate {
		sql += ` FOR UPDATE`
	}
	b, err := scanBooking(r.q.QueryRow(ctx, sql, id, tenantID))
	if err != nil {
		return model.Booking{}, mapError(err)
	}
	return b, nil
}

func (r reader) BookingsForDate(ctx context.Context, tenantID, professionalID string, date model.Date) ([]model.Booking, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1 AND professional_id = $2 AND booking_date = $3::date
		ORDER BY start_time ASC
	`, tenantID, professionalID, date.String())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r reader) BookingByIdempotencyKey(ctx context.Context, tenantID, key string) (model.Booking, error) {
	b, err := scanBooking(r.q.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1 AND idempotency_key = $2 AND idempotency_key <> ''
	`, tenantID, key))
	if err != nil {
		return model.Booking{}, mapError(err)
	}
	return b, nil
}

const bookingColumns = `id::text, tenant_id, professional_id, booking_date, start_time, duration_minutes, status,
	cancel_reason, late_cancellation, idempotency_key, created_at, updated_at, cancelled_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var (
		b           model.Booking
		date        time.Time
		status      string
		cancelledAt *time.Time
	)
	if err := row.Scan(&b.ID, &b.TenantID, &b.ProfessionalID, &date, &b.StartTime, &b.DurationMinutes, &status,
		&b.CancelReason, &b.LateCancellation, &b.IdempotencyKey, &b.CreatedAt, &b.UpdatedAt, &cancelledAt); err != nil {
		return model.Booking{}, err
	}
	b.Date = model.DateOf(date.UTC())
	b.Status = model.Status(status)
	b.CancelledAt = cancelledAt
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanBlackout(row pgx.Row) (model.BlackoutInterval, error) {
	var b model.BlackoutInterval
	err := row.Scan(&b.ID, &b.TenantID, &b.ProfessionalID, &b.Start, &b.End, &b.Reason, &b.CreatedAt)
	return b, err
}

// mapError translates driver errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01":
			return fmt.Errorf("%w: %s", ErrOverlap, pgErr.ConstraintName)
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "22P02":
			// Malformed uuid in a lookup.
			return ErrNotFound
		}
	}
	return err
}
