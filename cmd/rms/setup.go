package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"maps"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/slotrace/rms/internal/config"
	"github.com/slotrace/rms/internal/cu"
	"github.com/slotrace/rms/internal/notify"
	"github.com/slotrace/rms/internal/race"
	"github.com/slotrace/rms/internal/timeutil"
	"github.com/slotrace/rms/internal/tuning"
)

const defaultConfigHint = config.DefaultConfigPath + " if present"

// controlUnit is what the service needs from a serial or demo control unit.
type controlUnit interface {
	race.ControlUnit
	tuning.Writer
	Monitor(ctx context.Context) error
	AttachAdminRoutes(mux *http.ServeMux)
	Close() error
}

// loadConfig reads the configuration file and applies flag overrides. A
// missing default file is not an error; a missing explicit one is.
func loadConfig(f *flags) (*config.ServiceConfig, error) {
	cfg := config.EmptyServiceConfig()
	path := f.config
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			path = config.DefaultConfigPath
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if path != "" {
		loaded, err := config.LoadServiceConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		log.Printf("loaded configuration from %s", path)
	}

	if f.port != "" {
		cfg.Port = &f.port
	}
	if f.demo {
		empty := ""
		cfg.Port = &empty
	}
	if f.listen != "" {
		cfg.Listen = &f.listen
	}
	if f.db != "" {
		cfg.DBPath = &f.db
	}
	return cfg, cfg.Validate()
}

// buildCatalog returns the default messages overlaid with the catalog at
// path, if any.
func buildCatalog(path string) (race.Catalog, error) {
	catalog := maps.Clone(notify.DefaultMessages)
	if path == "" {
		return catalog, nil
	}
	custom, err := config.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	maps.Copy(catalog, custom)
	return catalog, nil
}

// buildSinks maps sink names onto announcement sinks. stdout receives the
// "stdout" sink's output.
func buildSinks(names []string, stdout io.Writer) ([]notify.Sink, error) {
	var sinks []notify.Sink
	for _, name := range names {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, notify.LogSink{})
		case config.SinkStdout:
			sinks = append(sinks, notify.NewServiceSink("", notify.NewWriterService(stdout)))
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	return sinks, nil
}

// openUnit connects to the configured serial port, or starts the demo
// control unit when no port is configured.
func openUnit(cfg *config.ServiceConfig, demo bool) (controlUnit, error) {
	if port := cfg.GetPort(); port != "" && !demo {
		u, err := cu.OpenSerial(port, cfg.GetSerial())
		if err != nil {
			return nil, err
		}
		log.Printf("connected to control unit on %s", port)
		return u, nil
	}
	cars := cfg.GetDemoCars()
	log.Printf("no control unit port configured, running demo with %d cars", cars)
	return cu.NewDemoUnit(cars, timeutil.RealClock{}, uint64(time.Now().UnixNano())), nil
}

// startAnnouncements subscribes to race events and announces them until ctx
// is done. The subscription exists when it returns, so sessions attached
// afterwards are announced from their first event.
func startAnnouncements(ctx context.Context, wg *sync.WaitGroup, manager *race.Manager, d *notify.Dispatcher) {
	id, events := manager.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer manager.Unsubscribe(id)
		if err := d.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("announcements stopped: %v", err)
		}
		log.Printf("announcement routine terminated")
	}()
}
