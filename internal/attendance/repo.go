package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"geoattend/internal/geo"
)

const schema = `
CREATE TABLE IF NOT EXISTS geo_fences (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	center_lat    DOUBLE PRECISION NOT NULL,
	center_lng    DOUBLE PRECISION NOT NULL,
	radius_meters DOUBLE PRECISION NOT NULL CHECK (radius_meters > 0),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attendance (
	id              TEXT PRIMARY KEY,
	actor_id        TEXT NOT NULL,
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	accuracy        DOUBLE PRECISION,
	status          TEXT NOT NULL DEFAULT 'present',
	is_inside       BOOLEAN NOT NULL,
	device_info     JSONB NOT NULL DEFAULT '{}'::jsonb,
	admin_override  BOOLEAN NOT NULL DEFAULT FALSE,
	override_reason TEXT,
	timestamp       TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_attendance_actor ON attendance(actor_id);
CREATE INDEX IF NOT EXISTS idx_attendance_time  ON attendance(timestamp);

CREATE TABLE IF NOT EXISTS override_audits (
	id          TEXT PRIMARY KEY,
	mark_id     TEXT NOT NULL UNIQUE REFERENCES attendance(id),
	actor_id    TEXT NOT NULL,
	reason      TEXT,
	is_inside   BOOLEAN NOT NULL,
	marked_at   TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Repository persists attendance data in Postgres.
// Marks are append-only: there is no update or delete path.
type Repository struct {
	db  *sql.DB
	log *zap.Logger
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{db: db, log: log}
}

// Migrate creates the tables when they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// ListFences returns all registered fences in creation order.
// Rows failing Fence.Validate are skipped.
func (r *Repository) ListFences(ctx context.Context) ([]geo.Fence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, center_lat, center_lng, radius_meters
		FROM geo_fences
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fences []geo.Fence
	for rows.Next() {
		var f geo.Fence
		if err := rows.Scan(&f.ID, &f.Name, &f.Center.Lat, &f.Center.Lng, &f.RadiusMeters); err != nil {
			return nil, err
		}
		if err := f.Validate(); err != nil {
			r.log.Warn("skipping invalid fence", zap.String("fence_id", f.ID), zap.Error(err))
			continue
		}
		fences = append(fences, f)
	}
	return fences, rows.Err()
}

// InsertMark writes a new mark and fills in ID and CreatedAt.
func (r *Repository) InsertMark(ctx context.Context, m Mark) (Mark, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if len(m.DeviceInfo) == 0 {
		m.DeviceInfo = json.RawMessage(`{}`)
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, actor_id, latitude, longitude, accuracy, status, is_inside, device_info, admin_override, override_reason, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at
	`, m.ID, m.ActorID, m.Latitude, m.Longitude, m.Accuracy, m.Status, m.IsInside, []byte(m.DeviceInfo), m.AdminOverride, m.OverrideReason, m.Timestamp)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return Mark{}, err
	}
	return m, nil
}

// Filter narrows mark listings.
type Filter struct {
	ActorID string
	Limit   int
	Offset  int
}

const markColumns = `id, actor_id, latitude, longitude, accuracy, status, is_inside, device_info, admin_override, override_reason, timestamp, created_at`

// ListMarks returns marks newest first.
func (r *Repository) ListMarks(ctx context.Context, f Filter) ([]Mark, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT ` + markColumns + ` FROM attendance`
	args := []any{}
	if f.ActorID != "" {
		args = append(args, f.ActorID)
		query += " WHERE actor_id = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY timestamp DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Mark
	for rows.Next() {
		var (
			m      Mark
			device []byte
		)
		if err := rows.Scan(&m.ID, &m.ActorID, &m.Latitude, &m.Longitude, &m.Accuracy, &m.Status, &m.IsInside, &device, &m.AdminOverride, &m.OverrideReason, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.DeviceInfo = json.RawMessage(device)
		res = append(res, m)
	}
	return res, rows.Err()
}

// CountMarks returns the total and present counts, optionally for one actor.
func (r *Repository) CountMarks(ctx context.Context, actorID string) (total, present int, err error) {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'present') FROM attendance`
	args := []any{}
	if actorID != "" {
		query += " WHERE actor_id = $1"
		args = append(args, actorID)
	}
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&total, &present)
	return total, present, err
}

// InsertOverrideAudit records an override once; replays of the same mark are ignored.
func (r *Repository) InsertOverrideAudit(ctx context.Context, evt OverrideEvent) error {
	if evt.MarkID == "" || evt.ActorID == "" {
		return fmt.Errorf("override audit: mark and actor required")
	}
	var reason *string
	if s := strings.TrimSpace(evt.Reason); s != "" {
		reason = &s
	}
	markedAt := evt.Timestamp
	if markedAt.IsZero() {
		markedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO override_audits (id, mark_id, actor_id, reason, is_inside, marked_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (mark_id) DO NOTHING
	`, uuid.NewString(), evt.MarkID, evt.ActorID, reason, evt.IsInside, markedAt)
	return err
}
