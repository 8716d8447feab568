package sink

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ghalamif/sensorhub/internal/domain"
)

func TestPostgresSinkWriteSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink, err := NewPostgresSink(db, "")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	start := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	rec := &domain.SessionRecord{
		DeviceName: "Simulation Node",
		StartTime:  start,
		EndTime:    end,
		DataPoints: []domain.Reading{{SequenceID: 3, Timestamp: start, ChannelID: "temp", Value: 25}},
	}

	expectedQuery := regexp.QuoteMeta("INSERT INTO sensor_sessions (device_name, start_time, end_time, data_points) VALUES ($1,$2,$3,$4)")
	mock.ExpectExec(expectedQuery).
		WithArgs("Simulation Node", start, end, []byte(`[{"id":3,"timestamp":"2024-02-01T09:00:00Z","parameter":"temp","value":25}]`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := sink.WriteSession(context.Background(), rec); err != nil {
		t.Fatalf("write session: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSinkEmptySessionWritesEmptyArray(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink, _ := NewPostgresSink(db, "archive.sessions")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO archive.sessions")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), []byte("[]")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := sink.WriteSession(context.Background(), &domain.SessionRecord{DeviceName: "x"}); err != nil {
		t.Fatalf("write session: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSinkPropagatesErrors(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	sink, _ := NewPostgresSink(db, "")
	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO sensor_sessions").WillReturnError(boom)

	if err := sink.WriteSession(context.Background(), &domain.SessionRecord{}); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestPostgresSinkEnsureSchema(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	sink, _ := NewPostgresSink(db, "")
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS sensor_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := sink.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSinkRejectsBadTableName(t *testing.T) {
	if _, err := NewPostgresSink(nil, "sessions; DROP TABLE x"); err == nil {
		t.Fatal("expected an error for an unsafe table name")
	}
}

func TestPostgresSinkName(t *testing.T) {
	sink, _ := NewPostgresSink(nil, "")
	if sink.Name() != "postgres" {
		t.Fatalf("expected sink name postgres, got %s", sink.Name())
	}
}
