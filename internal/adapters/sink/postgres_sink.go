package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	_ "github.com/lib/pq"

	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

const DefaultTable = "sensor_sessions"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSink stores one row per finished session with the readings as a
// JSON array.
type PostgresSink struct {
	db        *sql.DB
	tableName string
}

// Open connects through lib/pq and pings the server.
func Open(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgresSink(db *sql.DB, table string) (*PostgresSink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSink{db: db, tableName: table}, nil
}

func (p *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the session table when it does not exist.
func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+p.tableName+` (
	id serial PRIMARY KEY,
	device_name text NOT NULL,
	start_time timestamptz NOT NULL,
	end_time timestamptz NOT NULL,
	data_points jsonb NOT NULL
)`)
	return err
}

func (p *PostgresSink) WriteSession(ctx context.Context, rec *domain.SessionRecord) error {
	points := rec.DataPoints
	if points == nil {
		points = []domain.Reading{}
	}
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("marshal data points: %w", err)
	}

	_, err = p.db.ExecContext(ctx,
		"INSERT INTO "+p.tableName+" (device_name, start_time, end_time, data_points) VALUES ($1,$2,$3,$4)",
		rec.DeviceName, rec.StartTime, rec.EndTime, data)
	return err
}

var _ ports.SessionSink = (*PostgresSink)(nil)
