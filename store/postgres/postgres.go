/*
Package postgres provides a PostgreSQL implementation of generic.Store on pgx.

PURPOSE:
  Production store for multi-process deployments (API servers plus a worker)
  where SQLite's single writer is not enough. Table layout mirrors
  store/sqlite; timestamps are TIMESTAMPTZ, amounts NUMERIC(12,2).

CONCURRENCY:
  Database-level concurrency control replaces the SQLite mutex:
  - idx_bookings_active_slot turns the losing concurrent booking into a
    unique violation (SQLSTATE 23505), mapped to ErrSlotConflict
  - ClosePriceVersion updates WHERE end_at IS NULL; a racing supersession
    blocks on the row lock, then affects zero rows and is reported as
    ErrConcurrentModification

AMOUNTS:
  Read as amount::text and written as $n::numeric so decimal.Decimal never
  passes through float64.

SEE ALSO:
  - generic/store.go: Interface definitions
  - store/sqlite/sqlite.go: SQLite implementation
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/generic"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements generic.Store using a pgx connection pool.
type Store struct {
	queries
	pool *pgxpool.Pool
}

// New connects to the database and applies pending migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{queries: queries{db: pool}, pool: pool}
	if _, err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies pending migrations and returns the versions applied.
// goose works on database/sql, so a *sql.DB is opened on top of the pool.
func (s *Store) Migrate(ctx context.Context) ([]int64, error) {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return nil, err
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

// Version returns the current schema version.
func (s *Store) Version(ctx context.Context) (int64, error) {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return 0, err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}

// WithTx executes fn within a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{queries: queries{db: tx}}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	queries
}

func (ts *txStore) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	return fn(ts)
}

type queries struct {
	db querier
}

// =============================================================================
// COURTS
// =============================================================================

func (q *queries) SaveResource(ctx context.Context, r generic.Resource) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO courts (id, name, covered, under_maintenance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			covered = EXCLUDED.covered,
			under_maintenance = EXCLUDED.under_maintenance
	`, int64(r.ID), r.Name, r.Covered, r.UnderMaintenance)
	if err != nil {
		return fmt.Errorf("failed to save court: %w", err)
	}
	return nil
}

func (q *queries) GetResource(ctx context.Context, id generic.ResourceID) (generic.Resource, error) {
	var r generic.Resource
	err := q.db.QueryRow(ctx, `
		SELECT id, name, covered, under_maintenance FROM courts WHERE id = $1
	`, int64(id)).Scan(&r.ID, &r.Name, &r.Covered, &r.UnderMaintenance)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.Resource{}, fmt.Errorf("%w: %d", generic.ErrResourceNotFound, id)
	}
	if err != nil {
		return generic.Resource{}, fmt.Errorf("failed to get court: %w", err)
	}
	return r, nil
}

func (q *queries) ListResources(ctx context.Context) ([]generic.Resource, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name, covered, under_maintenance FROM courts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courts: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (generic.Resource, error) {
		var r generic.Resource
		err := row.Scan(&r.ID, &r.Name, &r.Covered, &r.UnderMaintenance)
		return r, err
	})
}

// =============================================================================
// DEMAND CLASSES & WEEKLY TEMPLATE
// =============================================================================

func (q *queries) SaveDemandClass(ctx context.Context, d generic.DemandClass) (generic.DemandClassID, error) {
	if d.ID == 0 {
		var id int64
		err := q.db.QueryRow(ctx, `
			INSERT INTO demand_classes (code, description, active) VALUES ($1, $2, $3)
			RETURNING id
		`, d.Code, d.Description, d.Active).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to insert demand class: %w", err)
		}
		return generic.DemandClassID(id), nil
	}

	_, err := q.db.Exec(ctx, `
		INSERT INTO demand_classes (id, code, description, active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			description = EXCLUDED.description,
			active = EXCLUDED.active
	`, int64(d.ID), d.Code, d.Description, d.Active)
	if err != nil {
		return 0, fmt.Errorf("failed to save demand class: %w", err)
	}
	return d.ID, nil
}

func (q *queries) GetDemandClass(ctx context.Context, id generic.DemandClassID) (generic.DemandClass, error) {
	var d generic.DemandClass
	err := q.db.QueryRow(ctx, `
		SELECT id, code, description, active FROM demand_classes WHERE id = $1
	`, int64(id)).Scan(&d.ID, &d.Code, &d.Description, &d.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.DemandClass{}, fmt.Errorf("%w: %d", generic.ErrDemandNotFound, id)
	}
	if err != nil {
		return generic.DemandClass{}, fmt.Errorf("failed to get demand class: %w", err)
	}
	return d, nil
}

func (q *queries) ListDemandClasses(ctx context.Context) ([]generic.DemandClass, error) {
	rows, err := q.db.Query(ctx, `SELECT id, code, description, active FROM demand_classes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list demand classes: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (generic.DemandClass, error) {
		var d generic.DemandClass
		err := row.Scan(&d.ID, &d.Code, &d.Description, &d.Active)
		return d, err
	})
}

func (q *queries) SaveScheduleSlot(ctx context.Context, s generic.ScheduleSlot) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO schedule_slots (day_of_week, start_time, demand_class_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (day_of_week, start_time) DO UPDATE SET
			demand_class_id = EXCLUDED.demand_class_id
	`, s.DayOfWeek, s.StartTime, int64(s.DemandClassID))
	if err != nil {
		return fmt.Errorf("failed to save schedule slot: %w", err)
	}
	return nil
}

func (q *queries) ListScheduleSlots(ctx context.Context) ([]generic.ScheduleSlot, error) {
	rows, err := q.db.Query(ctx, `
		SELECT day_of_week, start_time, demand_class_id
		FROM schedule_slots ORDER BY day_of_week, start_time
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (generic.ScheduleSlot, error) {
		var (
			s   generic.ScheduleSlot
			day int16
			id  int64
		)
		err := row.Scan(&day, &s.StartTime, &id)
		s.DayOfWeek = int(day)
		s.DemandClassID = generic.DemandClassID(id)
		return s, err
	})
}

// =============================================================================
// PRICE VERSIONS
// =============================================================================

const priceColumns = `id, demand_class_id, amount::text, start_at, end_at, active, description, created_at`

func (q *queries) InsertPriceVersion(ctx context.Context, p generic.PriceVersion) (generic.PriceVersionID, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO price_versions (demand_class_id, amount, start_at, end_at, active, description, created_at)
		VALUES ($1, $2::numeric, $3, $4, $5, $6, $7)
		RETURNING id
	`, int64(p.DemandClassID), p.Amount.String(), p.Start.UTC(), utcPtr(p.End), p.Active, p.Description, p.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: demand class %d already has a current price", generic.ErrConcurrentModification, p.DemandClassID)
		}
		return 0, fmt.Errorf("failed to insert price version: %w", err)
	}
	return generic.PriceVersionID(id), nil
}

func (q *queries) ClosePriceVersion(ctx context.Context, id generic.PriceVersionID, end time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE price_versions SET end_at = $1, active = FALSE
		WHERE id = $2 AND end_at IS NULL
	`, end.UTC(), int64(id))
	if err != nil {
		return fmt.Errorf("failed to close price version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: price version %d is no longer current", generic.ErrConcurrentModification, id)
	}
	return nil
}

func (q *queries) CurrentPriceVersion(ctx context.Context, demand generic.DemandClassID) (generic.PriceVersion, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+priceColumns+` FROM price_versions
		WHERE demand_class_id = $1 AND end_at IS NULL
	`, int64(demand))
	p, err := scanPriceVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.PriceVersion{}, fmt.Errorf("%w: demand class %d has no current price", generic.ErrPriceNotFound, demand)
	}
	return p, err
}

func (q *queries) PriceVersions(ctx context.Context, demand generic.DemandClassID) ([]generic.PriceVersion, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+priceColumns+` FROM price_versions
		WHERE demand_class_id = $1
		ORDER BY start_at, id
	`, int64(demand))
	if err != nil {
		return nil, fmt.Errorf("failed to load price versions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (generic.PriceVersion, error) {
		return scanPriceVersion(row)
	})
}

func (q *queries) GetPriceVersion(ctx context.Context, id generic.PriceVersionID) (generic.PriceVersion, error) {
	row := q.db.QueryRow(ctx, `SELECT `+priceColumns+` FROM price_versions WHERE id = $1`, int64(id))
	p, err := scanPriceVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.PriceVersion{}, fmt.Errorf("%w: %d", generic.ErrPriceNotFound, id)
	}
	return p, err
}

func scanPriceVersion(row pgx.Row) (generic.PriceVersion, error) {
	var (
		p      generic.PriceVersion
		id     int64
		demand int64
		amount string
	)
	if err := row.Scan(&id, &demand, &amount, &p.Start, &p.End, &p.Active, &p.Description, &p.CreatedAt); err != nil {
		return generic.PriceVersion{}, err
	}
	p.ID = generic.PriceVersionID(id)
	p.DemandClassID = generic.DemandClassID(demand)
	var err error
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return generic.PriceVersion{}, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	p.Start = p.Start.UTC()
	p.End = utcPtr(p.End)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

const bookingColumns = `id, reference::text, user_id, court_id, start_at, end_at, price_version_id,
	price_amount::text, cancelled, cancelled_at, created_at`

func (q *queries) InsertBooking(ctx context.Context, b generic.Booking) (generic.BookingID, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO bookings (reference, user_id, court_id, start_at, end_at, price_version_id,
			price_amount, cancelled, cancelled_at, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)
		RETURNING id
	`,
		b.Reference,
		int64(b.UserID),
		int64(b.ResourceID),
		b.Start.UTC(),
		b.End.UTC(),
		int64(b.PriceVersionID),
		b.PriceAmount.String(),
		b.Cancelled,
		utcPtr(b.CancelledAt),
		b.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: court %d at %s", generic.ErrSlotConflict, b.ResourceID, b.Start.UTC().Format(time.RFC3339))
		}
		return 0, fmt.Errorf("failed to insert booking: %w", err)
	}
	return generic.BookingID(id), nil
}

func (q *queries) GetBooking(ctx context.Context, id generic.BookingID) (generic.Booking, error) {
	row := q.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, int64(id))
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.Booking{}, fmt.Errorf("%w: %d", generic.ErrBookingNotFound, id)
	}
	return b, err
}

func (q *queries) FindActiveBooking(ctx context.Context, resource generic.ResourceID, start time.Time) (generic.Booking, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE court_id = $1 AND start_at = $2 AND NOT cancelled
	`, int64(resource), start.UTC())
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.Booking{}, generic.ErrBookingNotFound
	}
	return b, err
}

func (q *queries) ActiveBookingsBetween(ctx context.Context, from, to time.Time) ([]generic.Booking, error) {
	return q.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE NOT cancelled AND start_at >= $1 AND start_at < $2
		ORDER BY court_id, start_at
	`, from.UTC(), to.UTC())
}

func (q *queries) BookingsByUser(ctx context.Context, user generic.UserID, from, to time.Time) ([]generic.Booking, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{int64(user)}
	)
	if !from.IsZero() {
		args = append(args, from.UTC())
		where = append(where, "start_at >= $"+strconv.Itoa(len(args)))
	}
	if !to.IsZero() {
		args = append(args, to.UTC())
		where = append(where, "start_at < $"+strconv.Itoa(len(args)))
	}
	return q.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY start_at DESC, id DESC
	`, args...)
}

func (q *queries) MarkBookingCancelled(ctx context.Context, id generic.BookingID, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE bookings SET cancelled = TRUE, cancelled_at = $1
		WHERE id = $2 AND NOT cancelled
	`, at.UTC(), int64(id))
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: booking %d already cancelled or missing", generic.ErrConcurrentModification, id)
	}
	return nil
}

func (q *queries) queryBookings(ctx context.Context, query string, args ...any) ([]generic.Booking, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (generic.Booking, error) {
		return scanBooking(row)
	})
}

func scanBooking(row pgx.Row) (generic.Booking, error) {
	var (
		b                        generic.Booking
		id, user, court, priceID int64
		amount                   string
	)
	err := row.Scan(&id, &b.Reference, &user, &court, &b.Start, &b.End, &priceID,
		&amount, &b.Cancelled, &b.CancelledAt, &b.CreatedAt)
	if err != nil {
		return generic.Booking{}, err
	}
	b.ID = generic.BookingID(id)
	b.UserID = generic.UserID(user)
	b.ResourceID = generic.ResourceID(court)
	b.PriceVersionID = generic.PriceVersionID(priceID)
	if b.PriceAmount, err = decimal.NewFromString(amount); err != nil {
		return generic.Booking{}, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	b.Start = b.Start.UTC()
	b.End = b.End.UTC()
	b.CancelledAt = utcPtr(b.CancelledAt)
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

// =============================================================================
// SCHEDULED TASKS
// =============================================================================

const taskColumns = `id, user_id, booking_id, task_type, fire_at, payload::text, executed, executed_at,
	retry_count, last_error, outcome, created_at`

func (q *queries) InsertTask(ctx context.Context, t generic.ScheduledTask) (generic.TaskID, error) {
	payload := string(t.Payload)
	if payload == "" {
		payload = "{}"
	}
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO scheduled_tasks (user_id, booking_id, task_type, fire_at, payload, executed,
			executed_at, retry_count, last_error, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`,
		int64(t.UserID),
		bookingIDArg(t.BookingID),
		string(t.Type),
		t.FireAt.UTC(),
		payload,
		t.Executed,
		utcPtr(t.ExecutedAt),
		t.RetryCount,
		t.LastError,
		string(t.Outcome),
		t.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert task: %w", err)
	}
	return generic.TaskID(id), nil
}

func (q *queries) GetTask(ctx context.Context, id generic.TaskID) (generic.ScheduledTask, error) {
	row := q.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = $1`, int64(id))
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.ScheduledTask{}, fmt.Errorf("%w: %d", generic.ErrTaskNotFound, id)
	}
	return t, err
}

func (q *queries) UpdateTaskExecution(ctx context.Context, t generic.ScheduledTask) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE scheduled_tasks
		SET executed = $1, executed_at = $2, retry_count = $3, last_error = $4, outcome = $5
		WHERE id = $6 AND NOT executed
	`, t.Executed, utcPtr(t.ExecutedAt), t.RetryCount, t.LastError, string(t.Outcome), int64(t.ID))
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Already finalized, or missing
	var exists int
	err = q.db.QueryRow(ctx, `SELECT 1 FROM scheduled_tasks WHERE id = $1`, int64(t.ID)).Scan(&exists)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: %d", generic.ErrTaskNotFound, t.ID)
	case err != nil:
		return fmt.Errorf("failed to check task: %w", err)
	}
	return fmt.Errorf("%w: task %d already executed", generic.ErrConcurrentModification, t.ID)
}

func (q *queries) DueTasks(ctx context.Context, now time.Time, limit int) ([]generic.ScheduledTask, error) {
	// LIMIT NULL is no limit
	var lim any
	if limit > 0 {
		lim = limit
	}
	return q.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE NOT executed AND fire_at <= $1
		ORDER BY fire_at, id
		LIMIT $2
	`, now.UTC(), lim)
}

func (q *queries) PendingTasksForBooking(ctx context.Context, booking generic.BookingID) ([]generic.ScheduledTask, error) {
	return q.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE booking_id = $1 AND NOT executed
		ORDER BY fire_at, id
	`, int64(booking))
}

func (q *queries) TaskStatistics(ctx context.Context, now time.Time) (generic.TaskStats, error) {
	var total, executed, overdue, future, failed, cancelled int64
	err := q.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE executed),
			COUNT(*) FILTER (WHERE NOT executed AND fire_at <= $1),
			COUNT(*) FILTER (WHERE NOT executed AND fire_at > $1),
			COUNT(*) FILTER (WHERE outcome = 'failed'),
			COUNT(*) FILTER (WHERE outcome = 'cancelled')
		FROM scheduled_tasks
	`, now.UTC()).Scan(&total, &executed, &overdue, &future, &failed, &cancelled)
	if err != nil {
		return generic.TaskStats{}, fmt.Errorf("failed to compute task statistics: %w", err)
	}
	return generic.TaskStats{
		Total:          int(total),
		Executed:       int(executed),
		PendingOverdue: int(overdue),
		PendingFuture:  int(future),
		Failed:         int(failed),
		Cancelled:      int(cancelled),
	}, nil
}

func (q *queries) queryTasks(ctx context.Context, query string, args ...any) ([]generic.ScheduledTask, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (generic.ScheduledTask, error) {
		return scanTask(row)
	})
}

func scanTask(row pgx.Row) (generic.ScheduledTask, error) {
	var (
		t                 generic.ScheduledTask
		id, user          int64
		bookingID         *int64
		taskType, outcome string
		payload           string
		retries           int32
	)
	err := row.Scan(&id, &user, &bookingID, &taskType, &t.FireAt, &payload, &t.Executed,
		&t.ExecutedAt, &retries, &t.LastError, &outcome, &t.CreatedAt)
	if err != nil {
		return generic.ScheduledTask{}, err
	}
	t.ID = generic.TaskID(id)
	t.UserID = generic.UserID(user)
	if bookingID != nil {
		b := generic.BookingID(*bookingID)
		t.BookingID = &b
	}
	t.Type = generic.TaskType(taskType)
	t.Outcome = generic.TaskOutcome(outcome)
	t.Payload = []byte(payload)
	t.RetryCount = int(retries)
	t.FireAt = t.FireAt.UTC()
	t.ExecutedAt = utcPtr(t.ExecutedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (q *queries) InsertNotification(ctx context.Context, n generic.Notification) (generic.NotificationID, error) {
	var taskID *int64
	if n.TaskID != nil {
		v := int64(*n.TaskID)
		taskID = &v
	}
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO notifications (user_id, booking_id, task_id, notification_type, recipient,
			subject, content, sent, sent_at, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`,
		int64(n.UserID),
		bookingIDArg(n.BookingID),
		taskID,
		string(n.Type),
		n.Recipient,
		n.Subject,
		n.Content,
		n.Sent,
		utcPtr(n.SentAt),
		n.Error,
		n.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert notification: %w", err)
	}
	return generic.NotificationID(id), nil
}

func (q *queries) NotificationsForBooking(ctx context.Context, booking generic.BookingID) ([]generic.Notification, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, booking_id, task_id, notification_type, recipient, subject, content,
			sent, sent_at, error, created_at
		FROM notifications WHERE booking_id = $1
		ORDER BY id
	`, int64(booking))
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (generic.Notification, error) {
		var (
			n                 generic.Notification
			id, user          int64
			bookingID, taskID *int64
			nType             string
		)
		err := row.Scan(&id, &user, &bookingID, &taskID, &nType, &n.Recipient, &n.Subject,
			&n.Content, &n.Sent, &n.SentAt, &n.Error, &n.CreatedAt)
		if err != nil {
			return generic.Notification{}, err
		}
		n.ID = generic.NotificationID(id)
		n.UserID = generic.UserID(user)
		if bookingID != nil {
			b := generic.BookingID(*bookingID)
			n.BookingID = &b
		}
		if taskID != nil {
			tid := generic.TaskID(*taskID)
			n.TaskID = &tid
		}
		n.Type = generic.TaskType(nType)
		n.SentAt = utcPtr(n.SentAt)
		n.CreatedAt = n.CreatedAt.UTC()
		return n, nil
	})
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, name, surname, email, can_rent, can_edit_price, can_edit_schedule, is_admin, created_at`

func (q *queries) SaveUser(ctx context.Context, u generic.User) (generic.UserID, error) {
	if u.ID == 0 {
		var id int64
		err := q.db.QueryRow(ctx, `
			INSERT INTO users (name, surname, email, can_rent, can_edit_price, can_edit_schedule, is_admin, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, u.Name, u.Surname, u.Email, u.CanRent, u.CanEditPrice, u.CanEditSchedule, u.IsAdmin, u.CreatedAt.UTC()).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				return 0, fmt.Errorf("%w: %s", generic.ErrUserExists, u.Email)
			}
			return 0, fmt.Errorf("failed to insert user: %w", err)
		}
		return generic.UserID(id), nil
	}

	_, err := q.db.Exec(ctx, `
		UPDATE users SET name = $1, surname = $2, email = $3, can_rent = $4, can_edit_price = $5,
			can_edit_schedule = $6, is_admin = $7
		WHERE id = $8
	`, u.Name, u.Surname, u.Email, u.CanRent, u.CanEditPrice, u.CanEditSchedule, u.IsAdmin, int64(u.ID))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", generic.ErrUserExists, u.Email)
		}
		return 0, fmt.Errorf("failed to update user: %w", err)
	}
	return u.ID, nil
}

func (q *queries) GetUser(ctx context.Context, id generic.UserID) (generic.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.User{}, fmt.Errorf("%w: %d", generic.ErrUserNotFound, id)
	}
	return u, err
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (generic.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.User{}, fmt.Errorf("%w: %s", generic.ErrUserNotFound, email)
	}
	return u, err
}

func scanUser(row pgx.Row) (generic.User, error) {
	var (
		u  generic.User
		id int64
	)
	err := row.Scan(&id, &u.Name, &u.Surname, &u.Email, &u.CanRent, &u.CanEditPrice,
		&u.CanEditSchedule, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		return generic.User{}, err
	}
	u.ID = generic.UserID(id)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func bookingIDArg(id *generic.BookingID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}
