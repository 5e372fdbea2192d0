package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"justapengu.in/livetiming/internal/timing"
)

// Header is the column order of an exported lap chart.
var Header = []string{
	"session_id",
	"driver_id",
	"driver_number",
	"driver_name",
	"lap_index",
	"lap_ms",
	"lap_formatted",
	"absolute_ms",
	"valid",
	"created_at",
}

// Source is the store the export reads from. Drivers includes drivers that
// are no longer active, so that their laps keep a name.
type Source interface {
	Drivers(ctx context.Context) ([]timing.Driver, error)
	SessionLaps(ctx context.Context, sessionID string) ([]timing.Lap, error)
}

type Row struct {
	SessionID    string    `json:"session_id"`
	DriverID     string    `json:"driver_id"`
	DriverNumber *int      `json:"driver_number"`
	DriverName   string    `json:"driver_name"`
	LapIndex     int       `json:"lap_index"`
	LapMS        int64     `json:"lap_ms"`
	LapFormatted string    `json:"lap_formatted"`
	AbsoluteMS   int64     `json:"absolute_ms"`
	Valid        bool      `json:"valid"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r Row) Record() []string {
	var number string

	if r.DriverNumber != nil {
		number = strconv.Itoa(*r.DriverNumber)
	}

	var createdAt string

	if !r.CreatedAt.IsZero() {
		createdAt = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}

	return []string{
		r.SessionID,
		r.DriverID,
		number,
		r.DriverName,
		strconv.Itoa(r.LapIndex),
		strconv.FormatInt(r.LapMS, 10),
		r.LapFormatted,
		strconv.FormatInt(r.AbsoluteMS, 10),
		strconv.FormatBool(r.Valid),
		createdAt,
	}
}

// Rows joins every lap of sessionID with its driver, ordered by driver ID
// then lap index. A lap whose driver is unknown keeps empty driver columns.
func Rows(ctx context.Context, source Source, sessionID string) ([]Row, error) {
	drivers, err := source.Drivers(ctx)

	if err != nil {
		return nil, errors.Wrap(err, "export: could not load drivers")
	}

	laps, err := source.SessionLaps(ctx, sessionID)

	if err != nil {
		return nil, errors.Wrapf(err, "export: could not load laps for session %s", sessionID)
	}

	return Join(drivers, laps), nil
}

func Join(drivers []timing.Driver, laps []timing.Lap) []Row {
	byID := make(map[string]timing.Driver, len(drivers))

	for _, driver := range drivers {
		byID[driver.ID] = driver
	}

	sorted := append([]timing.Lap(nil), laps...)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DriverID != sorted[j].DriverID {
			return sorted[i].DriverID < sorted[j].DriverID
		}

		return sorted[i].LapIndex < sorted[j].LapIndex
	})

	rows := make([]Row, 0, len(sorted))

	for _, lap := range sorted {
		row := Row{
			SessionID:    lap.SessionID,
			DriverID:     lap.DriverID,
			LapIndex:     lap.LapIndex,
			LapMS:        lap.LapMS,
			LapFormatted: timing.FormatDuration(lap.LapMS),
			AbsoluteMS:   lap.AbsoluteMS,
			Valid:        lap.Valid,
			CreatedAt:    lap.CreatedAt,
		}

		if driver, ok := byID[lap.DriverID]; ok {
			number := driver.Number
			row.DriverNumber = &number
			row.DriverName = driver.Name
		}

		rows = append(rows, row)
	}

	return rows
}

// WriteCSV writes rows with a header line. Nothing at all is written when
// there are no rows.
func WriteCSV(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return err
	}

	for _, row := range rows {
		if err := cw.Write(row.Record()); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// Filename is the attachment name for a session's export.
func Filename(sessionID string) string {
	return fmt.Sprintf("dbgp_%s.csv", sessionID)
}
