package livetiming

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"justapengu.in/livetiming/internal/export"
	"justapengu.in/livetiming/internal/feed"
	"justapengu.in/livetiming/internal/store"
	"justapengu.in/livetiming/internal/timing"
)

type Debugger struct {
	store  *store.BoltStore
	broker *feed.Broker
	view   *timing.View
	config *Config
	logs   *LogBuffer
	logger Logger
}

func NewDebugger(store *store.BoltStore, broker *feed.Broker, view *timing.View, config *Config, logs *LogBuffer, logger Logger) *Debugger {
	return &Debugger{store: store, broker: broker, view: view, config: config, logs: logs, logger: logger}
}

func (d *Debugger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Disposition", fmt.Sprintf(`attachment;filename="livetiming_debug_bundle_%s.zip"`, time.Now().Format("2006-01-02_15_04")))
	w.Header().Add("Content-Type", "application/zip")

	if err := d.BuildDebugInfo(r.Context(), w); err != nil {
		d.logger.WithError(err).Error("Could not build debug information")
		http.Error(w, "Could not build debug information", http.StatusInternalServerError)
		return
	}
}

type viewDump struct {
	Session        *timing.Session              `json:"session"`
	Drivers        []timing.Driver              `json:"drivers"`
	Laps           []timing.Lap                 `json:"laps"`
	Events         []timing.Event               `json:"events"`
	Classification []*timing.ClassificationLine `json:"classification"`
}

type feedDump struct {
	Subscribers int `json:"subscribers"`
}

// BuildDebugInfo writes a zip of the server's view, the stored copy of the
// same session, the redacted config and recent logs.
func (d *Debugger) BuildDebugInfo(ctx context.Context, w io.Writer) (err error) {
	z := zip.NewWriter(w)
	defer func() {
		closeErr := z.Close()

		if err == nil {
			err = closeErr
		}
	}()

	session := d.view.Session()

	view := viewDump{
		Session:        session,
		Drivers:        d.view.Drivers(),
		Laps:           d.view.Laps(),
		Events:         d.view.Events(),
		Classification: d.view.Classification(),
	}

	var drivers []timing.Driver
	var rows []export.Row
	var events []timing.Event

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		drivers, err = d.store.Drivers(gctx)
		return err
	})

	if session != nil {
		g.Go(func() (err error) {
			rows, err = export.Rows(gctx, d.store, session.ID)
			return err
		})

		g.Go(func() (err error) {
			events, err = d.store.SessionEvents(gctx, session.ID)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if err := d.addJSONFileToZip(z, "view.json", view); err != nil {
		return err
	}

	if err := d.addJSONFileToZip(z, "stored_drivers.json", drivers); err != nil {
		return err
	}

	if err := d.addJSONFileToZip(z, "stored_laps.json", rows); err != nil {
		return err
	}

	if err := d.addJSONFileToZip(z, "stored_events.json", events); err != nil {
		return err
	}

	if err := d.addJSONFileToZip(z, "feed.json", feedDump{Subscribers: d.broker.NumSubscribers()}); err != nil {
		return err
	}

	if err := d.addJSONFileToZip(z, "livetiming_config.json", d.config.Redacted()); err != nil {
		return err
	}

	if err := d.addLogsToZip(z, "livetiming.log", d.logs.String()); err != nil {
		return err
	}

	return nil
}

func (d *Debugger) addJSONFileToZip(z *zip.Writer, filename string, data interface{}) error {
	f, err := z.Create(filename)

	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	return enc.Encode(data)
}

func (d *Debugger) addLogsToZip(z *zip.Writer, filename string, data string) error {
	f, err := z.Create(filename)

	if err != nil {
		return err
	}

	_, err = f.Write([]byte(data))

	return err
}
