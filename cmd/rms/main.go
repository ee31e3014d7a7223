package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/peterbourgon/ff"

	"github.com/slotrace/rms/internal/api"
	"github.com/slotrace/rms/internal/monitoring"
	"github.com/slotrace/rms/internal/notify"
	"github.com/slotrace/rms/internal/race"
	"github.com/slotrace/rms/internal/settings"
	"github.com/slotrace/rms/internal/timeutil"
	"github.com/slotrace/rms/internal/tuning"
	"github.com/slotrace/rms/internal/version"
)

// flags holds command line overrides. Every flag may also be given as an
// RMS_ prefixed environment variable, e.g. RMS_PORT=/dev/ttyUSB0.
type flags struct {
	config  string
	port    string
	listen  string
	db      string
	demo    bool
	debug   bool
	version bool
}

func parseFlags(args []string) (*flags, error) {
	fs := flag.NewFlagSet("rms", flag.ContinueOnError)
	f := &flags{}
	fs.StringVar(&f.config, "config", "", "Path to the JSON service configuration (default "+defaultConfigHint+")")
	fs.StringVar(&f.port, "port", "", "Serial device of the control unit (overrides the configuration)")
	fs.StringVar(&f.listen, "listen", "", "HTTP listen address (overrides the configuration)")
	fs.StringVar(&f.db, "db", "", "Path to the settings database (overrides the configuration)")
	fs.BoolVar(&f.demo, "demo", false, "Use the simulated control unit even if a port is configured")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging at startup")
	fs.BoolVar(&f.version, "version", false, "Print version information and exit")
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("RMS")); err != nil {
		return nil, err
	}
	return f, nil
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}
	if f.version {
		fmt.Println(version.String())
		return
	}
	log.Printf("starting %s", version.String())

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if f.debug {
		monitoring.SetDebug(true)
	}

	catalog, err := buildCatalog(cfg.GetMessages())
	if err != nil {
		log.Fatalf("failed to load messages: %v", err)
	}
	sinks, err := buildSinks(cfg.GetSinks(), os.Stdout)
	if err != nil {
		log.Fatalf("failed to configure announcements: %v", err)
	}

	store, err := settings.Open(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("failed to open settings database: %v", err)
	}
	defer store.Close()

	unit, err := openUnit(cfg, f.demo)
	if err != nil {
		log.Fatalf("failed to open control unit: %v", err)
	}
	defer unit.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the control unit port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := unit.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("control unit monitor stopped: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	clock := timeutil.RealClock{}
	manager := race.NewManager(race.ManagerConfig{
		Clock:       clock,
		Tick:        cfg.GetTick(),
		Masks:       cfg.GetModeMasks(),
		EventBuffer: cfg.GetEventBuffer(),
	})
	defer manager.Detach()

	tuner := tuning.New(unit, clock, cfg.GetTuningDelay())
	defer tuner.Close()

	srv := api.NewServer(api.Config{
		Manager:    manager,
		Store:      store,
		Tuner:      tuner,
		Unit:       unit,
		Translator: catalog,
		Clock:      clock,
	})
	if err := srv.LoadPreferences(ctx); err != nil {
		log.Printf("failed to load preferences, using defaults: %v", err)
	}
	// the flag wins over the stored debug option
	if f.debug {
		monitoring.SetDebug(true)
	}

	// announce race events, subscribed before the first session starts
	startAnnouncements(ctx, &wg, manager, notify.NewDispatcher(store, catalog, sinks...))

	practice, err := store.RaceOptions(race.Practice)
	if err != nil {
		log.Fatalf("failed to read practice options: %v", err)
	}
	if _, err := manager.Attach(unit, practice); err != nil {
		log.Fatalf("failed to start practice session: %v", err)
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := srv.ServeMux()
		unit.AttachAdminRoutes(mux)
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
