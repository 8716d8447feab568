// Package export writes session history as CSV.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ghalamif/sensorhub/internal/domain"
)

// ErrNoData is returned instead of writing a file with only a header.
var ErrNoData = errors.New("export: no data to export")

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var header = []string{"Timestamp", "Parameter", "Value", "Unit"}

// WriteCSV writes one row per retained reading, oldest first, and returns the
// number of data rows.
func WriteCSV(w io.Writer, snap *domain.Snapshot) (int, error) {
	readings := snap.Readings()
	if len(readings) == 0 {
		return 0, ErrNoData
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, err
	}
	for i, r := range readings {
		name, unit := r.ChannelID, ""
		if c, ok := snap.Channel(r.ChannelID); ok {
			name, unit = c.DisplayName(), c.Unit
		}
		row := []string{
			r.Timestamp.UTC().Format(TimestampLayout),
			name,
			strconv.FormatFloat(r.Value, 'f', -1, 64),
			unit,
		}
		if err := cw.Write(row); err != nil {
			return i, fmt.Errorf("export row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return len(readings), nil
}

// FileName is the download name for a snapshot exported at now.
func FileName(snap *domain.Snapshot, now time.Time) string {
	prefix := ""
	if snap.DemoMode() {
		prefix = "DEMO_"
	}
	return fmt.Sprintf("%ssensor_data_%d.csv", prefix, now.UnixMilli())
}
