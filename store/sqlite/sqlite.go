/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.Store using SQLite. The PostgreSQL store in
  store/postgres follows the same table layout; only dialect details differ.

INTERFACES IMPLEMENTED:
  generic.Store: Courts, pricing, bookings, tasks, notifications, users

KEY TABLES:
  courts:          Bookable resources and their maintenance flag
  demand_classes:  Pricing tiers
  price_versions:  Append-only price history per demand class
  schedule_slots:  Weekly (day, time) -> demand class template
  bookings:        Reservations (soft-cancelled, never deleted)
  scheduled_tasks: Durable future-dated work for the executor
  notifications:   One row per email attempt

INDEXES:
  Critical indexes for correctness:
  - idx_bookings_active_slot: UNIQUE (court_id, start_at) WHERE cancelled = 0
  - idx_price_versions_current: UNIQUE (demand_class_id) WHERE end_at IS NULL
  Hot path:
  - idx_tasks_pending_fire: executor polling

TIME STORAGE:
  Instants are stored as UTC text in a fixed-width layout so that string
  comparison in SQL is chronological comparison.

CONCURRENCY:
  One connection, BEGIN IMMEDIATE transactions and a busy timeout make SQLite
  serialize writers. The sync.RWMutex additionally serializes WithTx against
  plain reads and writes in this process. Code running inside WithTx only
  sees the txStore, which never takes the lock.

MIGRATION:
  Schema is applied with goose from the embedded migrations/ directory on
  New(). Migrate() and Version() are exposed for the CLI.

USAGE:
  store, err := sqlite.New(ctx, "./data/courts.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/generic"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout is fixed width so lexical order equals chronological order.
const timeLayout = "2006-01-02T15:04:05Z"

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements generic.Store using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.RWMutex
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would be a different database
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	store.queries = queries{db: db, mu: &store.mu}

	if _, err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) provider() (*goose.Provider, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
}

// Migrate applies pending migrations and returns the versions applied.
func (s *Store) Migrate(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.provider()
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
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.provider()
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{queries: queries{db: sqlTx}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the Store view handed to WithTx callbacks.
type txStore struct {
	queries
}

// WithTx on a transaction runs fn inline; SQLite has no nested transactions.
func (ts *txStore) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	return fn(ts)
}

// =============================================================================
// QUERIES - Shared by Store and txStore
// =============================================================================

// queries holds every statement. mu is nil inside a transaction, where the
// outer WithTx already holds the write lock.
type queries struct {
	db dbtx
	mu *sync.RWMutex
}

func (q *queries) read() func() {
	if q.mu == nil {
		return func() {}
	}
	q.mu.RLock()
	return q.mu.RUnlock
}

func (q *queries) write() func() {
	if q.mu == nil {
		return func() {}
	}
	q.mu.Lock()
	return q.mu.Unlock
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// COURTS
// =============================================================================

func (q *queries) SaveResource(ctx context.Context, r generic.Resource) error {
	defer q.write()()

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO courts (id, name, covered, under_maintenance)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			covered = excluded.covered,
			under_maintenance = excluded.under_maintenance
	`, int64(r.ID), r.Name, r.Covered, r.UnderMaintenance)
	if err != nil {
		return fmt.Errorf("failed to save court: %w", err)
	}
	return nil
}

func (q *queries) GetResource(ctx context.Context, id generic.ResourceID) (generic.Resource, error) {
	defer q.read()()

	var r generic.Resource
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, covered, under_maintenance FROM courts WHERE id = ?
	`, int64(id)).Scan(&r.ID, &r.Name, &r.Covered, &r.UnderMaintenance)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Resource{}, fmt.Errorf("%w: %d", generic.ErrResourceNotFound, id)
	}
	if err != nil {
		return generic.Resource{}, fmt.Errorf("failed to get court: %w", err)
	}
	return r, nil
}

func (q *queries) ListResources(ctx context.Context) ([]generic.Resource, error) {
	defer q.read()()

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, name, covered, under_maintenance FROM courts ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courts: %w", err)
	}
	defer rows.Close()

	var out []generic.Resource
	for rows.Next() {
		var r generic.Resource
		if err := rows.Scan(&r.ID, &r.Name, &r.Covered, &r.UnderMaintenance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// DEMAND CLASSES & WEEKLY TEMPLATE
// =============================================================================

func (q *queries) SaveDemandClass(ctx context.Context, d generic.DemandClass) (generic.DemandClassID, error) {
	defer q.write()()

	if d.ID == 0 {
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO demand_classes (code, description, active) VALUES (?, ?, ?)
		`, d.Code, d.Description, d.Active)
		if err != nil {
			return 0, fmt.Errorf("failed to insert demand class: %w", err)
		}
		id, err := res.LastInsertId()
		return generic.DemandClassID(id), err
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO demand_classes (id, code, description, active) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			description = excluded.description,
			active = excluded.active
	`, int64(d.ID), d.Code, d.Description, d.Active)
	if err != nil {
		return 0, fmt.Errorf("failed to save demand class: %w", err)
	}
	return d.ID, nil
}

func (q *queries) GetDemandClass(ctx context.Context, id generic.DemandClassID) (generic.DemandClass, error) {
	defer q.read()()

	var d generic.DemandClass
	err := q.db.QueryRowContext(ctx, `
		SELECT id, code, description, active FROM demand_classes WHERE id = ?
	`, int64(id)).Scan(&d.ID, &d.Code, &d.Description, &d.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.DemandClass{}, fmt.Errorf("%w: %d", generic.ErrDemandNotFound, id)
	}
	if err != nil {
		return generic.DemandClass{}, fmt.Errorf("failed to get demand class: %w", err)
	}
	return d, nil
}

func (q *queries) ListDemandClasses(ctx context.Context) ([]generic.DemandClass, error) {
	defer q.read()()

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, code, description, active FROM demand_classes ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list demand classes: %w", err)
	}
	defer rows.Close()

	var out []generic.DemandClass
	for rows.Next() {
		var d generic.DemandClass
		if err := rows.Scan(&d.ID, &d.Code, &d.Description, &d.Active); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *queries) SaveScheduleSlot(ctx context.Context, s generic.ScheduleSlot) error {
	defer q.write()()

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO schedule_slots (day_of_week, start_time, demand_class_id)
		VALUES (?, ?, ?)
		ON CONFLICT(day_of_week, start_time) DO UPDATE SET
			demand_class_id = excluded.demand_class_id
	`, s.DayOfWeek, s.StartTime, int64(s.DemandClassID))
	if err != nil {
		return fmt.Errorf("failed to save schedule slot: %w", err)
	}
	return nil
}

func (q *queries) ListScheduleSlots(ctx context.Context) ([]generic.ScheduleSlot, error) {
	defer q.read()()

	rows, err := q.db.QueryContext(ctx, `
		SELECT day_of_week, start_time, demand_class_id
		FROM schedule_slots ORDER BY day_of_week, start_time
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule: %w", err)
	}
	defer rows.Close()

	var out []generic.ScheduleSlot
	for rows.Next() {
		var s generic.ScheduleSlot
		if err := rows.Scan(&s.DayOfWeek, &s.StartTime, &s.DemandClassID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// =============================================================================
// PRICE VERSIONS
// =============================================================================

const priceColumns = `id, demand_class_id, amount, start_at, end_at, active, description, created_at`

func (q *queries) InsertPriceVersion(ctx context.Context, p generic.PriceVersion) (generic.PriceVersionID, error) {
	defer q.write()()

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO price_versions (demand_class_id, amount, start_at, end_at, active, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		int64(p.DemandClassID),
		p.Amount.String(),
		formatTime(p.Start),
		nullTime(p.End),
		p.Active,
		p.Description,
		formatTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, fmt.Errorf("%w: demand class %d already has a current price", generic.ErrConcurrentModification, p.DemandClassID)
		}
		return 0, fmt.Errorf("failed to insert price version: %w", err)
	}
	id, err := res.LastInsertId()
	return generic.PriceVersionID(id), err
}

func (q *queries) ClosePriceVersion(ctx context.Context, id generic.PriceVersionID, end time.Time) error {
	defer q.write()()

	res, err := q.db.ExecContext(ctx, `
		UPDATE price_versions SET end_at = ?, active = 0
		WHERE id = ? AND end_at IS NULL
	`, formatTime(end), int64(id))
	if err != nil {
		return fmt.Errorf("failed to close price version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: price version %d is no longer current", generic.ErrConcurrentModification, id)
	}
	return nil
}

func (q *queries) CurrentPriceVersion(ctx context.Context, demand generic.DemandClassID) (generic.PriceVersion, error) {
	defer q.read()()

	row := q.db.QueryRowContext(ctx, `
		SELECT `+priceColumns+` FROM price_versions
		WHERE demand_class_id = ? AND end_at IS NULL
	`, int64(demand))
	p, err := scanPriceVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.PriceVersion{}, fmt.Errorf("%w: demand class %d has no current price", generic.ErrPriceNotFound, demand)
	}
	return p, err
}

func (q *queries) PriceVersions(ctx context.Context, demand generic.DemandClassID) ([]generic.PriceVersion, error) {
	defer q.read()()

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+priceColumns+` FROM price_versions
		WHERE demand_class_id = ?
		ORDER BY start_at, id
	`, int64(demand))
	if err != nil {
		return nil, fmt.Errorf("failed to load price versions: %w", err)
	}
	defer rows.Close()

	var out []generic.PriceVersion
	for rows.Next() {
		p, err := scanPriceVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) GetPriceVersion(ctx context.Context, id generic.PriceVersionID) (generic.PriceVersion, error) {
	defer q.read()()

	row := q.db.QueryRowContext(ctx, `SELECT `+priceColumns+` FROM price_versions WHERE id = ?`, int64(id))
	p, err := scanPriceVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.PriceVersion{}, fmt.Errorf("%w: %d", generic.ErrPriceNotFound, id)
	}
	return p, err
}

func scanPriceVersion(row scanner) (generic.PriceVersion, error) {
	var (
		p              generic.PriceVersion
		amount         string
		start, created string
		end            sql.NullString
	)
	if err := row.Scan(&p.ID, &p.DemandClassID, &amount, &start, &end, &p.Active, &p.Description, &created); err != nil {
		return generic.PriceVersion{}, err
	}
	var err error
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return generic.PriceVersion{}, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	if p.Start, err = parseTime(start); err != nil {
		return generic.PriceVersion{}, err
	}
	if p.End, err = parseNullTime(end); err != nil {
		return generic.PriceVersion{}, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return generic.PriceVersion{}, err
	}
	return p, nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

const bookingColumns = `id, reference, user_id, court_id, start_at, end_at, price_version_id,
	price_amount, cancelled, cancelled_at, created_at`

// InsertBooking relies on idx_bookings_active_slot for uniqueness.
func (q *queries) InsertBooking(ctx context.Context, b generic.Booking) (generic.BookingID, error) {
	defer q.write()()

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO bookings (reference, user_id, court_id, start_at, end_at, price_version_id,
			price_amount, cancelled, cancelled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.Reference,
		int64(b.UserID),
		int64(b.ResourceID),
		formatTime(b.Start),
		formatTime(b.End),
		int64(b.PriceVersionID),
		b.PriceAmount.String(),
		b.Cancelled,
		nullTime(b.CancelledAt),
		formatTime(b.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, fmt.Errorf("%w: court %d at %s", generic.ErrSlotConflict, b.ResourceID, formatTime(b.Start))
		}
		return 0, fmt.Errorf("failed to insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	return generic.BookingID(id), err
}

func (q *queries) GetBooking(ctx context.Context, id generic.BookingID) (generic.Booking, error) {
	defer q.read()()

	row := q.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, int64(id))
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Booking{}, fmt.Errorf("%w: %d", generic.ErrBookingNotFound, id)
	}
	return b, err
}

func (q *queries) FindActiveBooking(ctx context.Context, resource generic.ResourceID, start time.Time) (generic.Booking, error) {
	defer q.read()()

	row := q.db.QueryRowContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE court_id = ? AND start_at = ? AND cancelled = 0
	`, int64(resource), formatTime(start))
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Booking{}, generic.ErrBookingNotFound
	}
	return b, err
}

func (q *queries) ActiveBookingsBetween(ctx context.Context, from, to time.Time) ([]generic.Booking, error) {
	defer q.read()()

	return q.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE cancelled = 0 AND start_at >= ? AND start_at < ?
		ORDER BY court_id, start_at
	`, formatTime(from), formatTime(to))
}

func (q *queries) BookingsByUser(ctx context.Context, user generic.UserID, from, to time.Time) ([]generic.Booking, error) {
	defer q.read()()

	var (
		where = []string{"user_id = ?"}
		args  = []any{int64(user)}
	)
	if !from.IsZero() {
		where = append(where, "start_at >= ?")
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		where = append(where, "start_at < ?")
		args = append(args, formatTime(to))
	}
	return q.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY start_at DESC, id DESC
	`, args...)
}

func (q *queries) MarkBookingCancelled(ctx context.Context, id generic.BookingID, at time.Time) error {
	defer q.write()()

	res, err := q.db.ExecContext(ctx, `
		UPDATE bookings SET cancelled = 1, cancelled_at = ?
		WHERE id = ? AND cancelled = 0
	`, formatTime(at), int64(id))
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: booking %d already cancelled or missing", generic.ErrConcurrentModification, id)
	}
	return nil
}

func (q *queries) queryBookings(ctx context.Context, query string, args ...any) ([]generic.Booking, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var out []generic.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(row scanner) (generic.Booking, error) {
	var (
		b                   generic.Booking
		start, end, created string
		amount              string
		cancelledAt         sql.NullString
	)
	err := row.Scan(&b.ID, &b.Reference, &b.UserID, &b.ResourceID, &start, &end,
		&b.PriceVersionID, &amount, &b.Cancelled, &cancelledAt, &created)
	if err != nil {
		return generic.Booking{}, err
	}
	if b.PriceAmount, err = decimal.NewFromString(amount); err != nil {
		return generic.Booking{}, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	if b.Start, err = parseTime(start); err != nil {
		return generic.Booking{}, err
	}
	if b.End, err = parseTime(end); err != nil {
		return generic.Booking{}, err
	}
	if b.CancelledAt, err = parseNullTime(cancelledAt); err != nil {
		return generic.Booking{}, err
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return generic.Booking{}, err
	}
	return b, nil
}

// =============================================================================
// SCHEDULED TASKS
// =============================================================================

const taskColumns = `id, user_id, booking_id, task_type, fire_at, payload, executed, executed_at,
	retry_count, last_error, outcome, created_at`

func (q *queries) InsertTask(ctx context.Context, t generic.ScheduledTask) (generic.TaskID, error) {
	defer q.write()()

	payload := string(t.Payload)
	if payload == "" {
		payload = "{}"
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (user_id, booking_id, task_type, fire_at, payload, executed,
			executed_at, retry_count, last_error, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		int64(t.UserID),
		nullBookingID(t.BookingID),
		string(t.Type),
		formatTime(t.FireAt),
		payload,
		t.Executed,
		nullTime(t.ExecutedAt),
		t.RetryCount,
		nullStringPtr(t.LastError),
		string(t.Outcome),
		formatTime(t.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert task: %w", err)
	}
	id, err := res.LastInsertId()
	return generic.TaskID(id), err
}

func (q *queries) GetTask(ctx context.Context, id generic.TaskID) (generic.ScheduledTask, error) {
	defer q.read()()

	row := q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, int64(id))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.ScheduledTask{}, fmt.Errorf("%w: %d", generic.ErrTaskNotFound, id)
	}
	return t, err
}

func (q *queries) UpdateTaskExecution(ctx context.Context, t generic.ScheduledTask) error {
	defer q.write()()

	res, err := q.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET executed = ?, executed_at = ?, retry_count = ?, last_error = ?, outcome = ?
		WHERE id = ? AND executed = 0
	`, t.Executed, nullTime(t.ExecutedAt), t.RetryCount, nullStringPtr(t.LastError), string(t.Outcome), int64(t.ID))
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Already finalized, or missing
	var exists int
	err = q.db.QueryRowContext(ctx, `SELECT 1 FROM scheduled_tasks WHERE id = ?`, int64(t.ID)).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %d", generic.ErrTaskNotFound, t.ID)
	case err != nil:
		return fmt.Errorf("failed to check task: %w", err)
	}
	return fmt.Errorf("%w: task %d already executed", generic.ErrConcurrentModification, t.ID)
}

func (q *queries) DueTasks(ctx context.Context, now time.Time, limit int) ([]generic.ScheduledTask, error) {
	defer q.read()()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	return q.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE executed = 0 AND fire_at <= ?
		ORDER BY fire_at, id
		LIMIT ?
	`, formatTime(now), limit)
}

func (q *queries) PendingTasksForBooking(ctx context.Context, booking generic.BookingID) ([]generic.ScheduledTask, error) {
	defer q.read()()

	return q.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE booking_id = ? AND executed = 0
		ORDER BY fire_at, id
	`, int64(booking))
}

func (q *queries) TaskStatistics(ctx context.Context, now time.Time) (generic.TaskStats, error) {
	defer q.read()()

	ts := formatTime(now)
	var s generic.TaskStats
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN executed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN executed = 0 AND fire_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN executed = 0 AND fire_at > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'cancelled' THEN 1 ELSE 0 END), 0)
		FROM scheduled_tasks
	`, ts, ts).Scan(&s.Total, &s.Executed, &s.PendingOverdue, &s.PendingFuture, &s.Failed, &s.Cancelled)
	if err != nil {
		return generic.TaskStats{}, fmt.Errorf("failed to compute task statistics: %w", err)
	}
	return s, nil
}

func (q *queries) queryTasks(ctx context.Context, query string, args ...any) ([]generic.ScheduledTask, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []generic.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(row scanner) (generic.ScheduledTask, error) {
	var (
		t                 generic.ScheduledTask
		bookingID         sql.NullInt64
		taskType, outcome string
		fireAt, created   string
		payload           string
		executedAt        sql.NullString
		lastError         sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &bookingID, &taskType, &fireAt, &payload, &t.Executed,
		&executedAt, &t.RetryCount, &lastError, &outcome, &created)
	if err != nil {
		return generic.ScheduledTask{}, err
	}
	if bookingID.Valid {
		id := generic.BookingID(bookingID.Int64)
		t.BookingID = &id
	}
	if lastError.Valid {
		msg := lastError.String
		t.LastError = &msg
	}
	t.Type = generic.TaskType(taskType)
	t.Outcome = generic.TaskOutcome(outcome)
	t.Payload = []byte(payload)
	if t.FireAt, err = parseTime(fireAt); err != nil {
		return generic.ScheduledTask{}, err
	}
	if t.ExecutedAt, err = parseNullTime(executedAt); err != nil {
		return generic.ScheduledTask{}, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return generic.ScheduledTask{}, err
	}
	return t, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (q *queries) InsertNotification(ctx context.Context, n generic.Notification) (generic.NotificationID, error) {
	defer q.write()()

	var taskID sql.NullInt64
	if n.TaskID != nil {
		taskID = sql.NullInt64{Int64: int64(*n.TaskID), Valid: true}
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, booking_id, task_id, notification_type, recipient,
			subject, content, sent, sent_at, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		int64(n.UserID),
		nullBookingID(n.BookingID),
		taskID,
		string(n.Type),
		n.Recipient,
		n.Subject,
		n.Content,
		n.Sent,
		nullTime(n.SentAt),
		n.Error,
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	return generic.NotificationID(id), err
}

func (q *queries) NotificationsForBooking(ctx context.Context, booking generic.BookingID) ([]generic.Notification, error) {
	defer q.read()()

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, booking_id, task_id, notification_type, recipient, subject, content,
			sent, sent_at, error, created_at
		FROM notifications WHERE booking_id = ?
		ORDER BY id
	`, int64(booking))
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []generic.Notification
	for rows.Next() {
		var (
			n                 generic.Notification
			bookingID, taskID sql.NullInt64
			nType, created    string
			sentAt            sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &bookingID, &taskID, &nType, &n.Recipient, &n.Subject,
			&n.Content, &n.Sent, &sentAt, &n.Error, &created); err != nil {
			return nil, err
		}
		if bookingID.Valid {
			id := generic.BookingID(bookingID.Int64)
			n.BookingID = &id
		}
		if taskID.Valid {
			id := generic.TaskID(taskID.Int64)
			n.TaskID = &id
		}
		n.Type = generic.TaskType(nType)
		if n.SentAt, err = parseNullTime(sentAt); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, name, surname, email, can_rent, can_edit_price, can_edit_schedule, is_admin, created_at`

func (q *queries) SaveUser(ctx context.Context, u generic.User) (generic.UserID, error) {
	defer q.write()()

	if u.ID == 0 {
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO users (name, surname, email, can_rent, can_edit_price, can_edit_schedule, is_admin, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, u.Name, u.Surname, u.Email, u.CanRent, u.CanEditPrice, u.CanEditSchedule, u.IsAdmin, formatTime(u.CreatedAt))
		if err != nil {
			if isUniqueConstraintError(err) {
				return 0, fmt.Errorf("%w: %s", generic.ErrUserExists, u.Email)
			}
			return 0, fmt.Errorf("failed to insert user: %w", err)
		}
		id, err := res.LastInsertId()
		return generic.UserID(id), err
	}

	_, err := q.db.ExecContext(ctx, `
		UPDATE users SET name = ?, surname = ?, email = ?, can_rent = ?, can_edit_price = ?,
			can_edit_schedule = ?, is_admin = ?
		WHERE id = ?
	`, u.Name, u.Surname, u.Email, u.CanRent, u.CanEditPrice, u.CanEditSchedule, u.IsAdmin, int64(u.ID))
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, fmt.Errorf("%w: %s", generic.ErrUserExists, u.Email)
		}
		return 0, fmt.Errorf("failed to update user: %w", err)
	}
	return u.ID, nil
}

func (q *queries) GetUser(ctx context.Context, id generic.UserID) (generic.User, error) {
	defer q.read()()

	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, int64(id))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.User{}, fmt.Errorf("%w: %d", generic.ErrUserNotFound, id)
	}
	return u, err
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (generic.User, error) {
	defer q.read()()

	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.User{}, fmt.Errorf("%w: %s", generic.ErrUserNotFound, email)
	}
	return u, err
}

func scanUser(row scanner) (generic.User, error) {
	var (
		u       generic.User
		created string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.CanRent, &u.CanEditPrice,
		&u.CanEditSchedule, &u.IsAdmin, &created)
	if err != nil {
		return generic.User{}, err
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return generic.User{}, err
	}
	return u, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBookingID(id *generic.BookingID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}
