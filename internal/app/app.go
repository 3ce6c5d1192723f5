// Package app verdrahtet alle Komponenten des Dienstes und steuert ihren Lebenszyklus.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fiscal-offline-go/config"
	"fiscal-offline-go/internal/api"
	"fiscal-offline-go/internal/api/handlers"
	"fiscal-offline-go/internal/api/middleware"
	"fiscal-offline-go/internal/cache"
	"fiscal-offline-go/internal/cachekey"
	"fiscal-offline-go/internal/connectivity"
	"fiscal-offline-go/internal/db"
	"fiscal-offline-go/internal/db/repository"
	"fiscal-offline-go/internal/events"
	"fiscal-offline-go/internal/integrations/homeassistant"
	"fiscal-offline-go/internal/integrations/mqtt"
	"fiscal-offline-go/internal/queue"
	"fiscal-offline-go/internal/server/sse"
	"fiscal-offline-go/internal/services/cleanup"
	"fiscal-offline-go/internal/services/offline"
	syncsvc "fiscal-offline-go/internal/services/sync"
	"fiscal-offline-go/internal/transport"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// App hält alle Komponenten. New startet noch nichts, erst Run.
type App struct {
	cfg *config.Config
	db  *gorm.DB

	Bus     *events.Bus
	Manager *queue.Manager
	Cache   *cache.Store
	Keys    *cachekey.Generator
	Monitor *connectivity.Monitor
	Engine  *syncsvc.Engine
	Client  *offline.Client
	Hub     *sse.Hub
	MQTT    *mqtt.Client
	Cleanup *cleanup.CleanupService
}

// New öffnet die Datenbank und baut alle Komponenten auf
func New(cfg *config.Config) (*App, error) {
	database, err := db.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	bus := events.NewBus()
	manager := queue.NewManager(repository.NewOperationRepository(database), cfg.Queue, bus)
	keys := cachekey.NewGenerator(cachekey.MergeResources(cfg.Cache.Resources))

	store := cache.NewStore(cfg.Cache.MaxEntries)
	if cfg.Cache.SnapshotURL != "" {
		store.SetPersister(cache.NewAFSPersister(cfg.Cache.SnapshotURL))
	}

	var probe connectivity.Probe
	if cfg.Connectivity.ProbeInterval > 0 {
		probe = connectivity.NewInterfaceProbe()
	}
	monitor := connectivity.NewMonitor(cfg.Connectivity.StartOnline, probe)

	port := transport.NewHTTPClient(cfg.API)
	engine := syncsvc.NewEngine(manager, port, store, keys, bus)
	engine.SetOnlineCheck(monitor.IsOnline)
	monitor.OnRestored(engine.ConnectivityRestored)

	return &App{
		cfg:     cfg,
		db:      database,
		Bus:     bus,
		Manager: manager,
		Cache:   store,
		Keys:    keys,
		Monitor: monitor,
		Engine:  engine,
		Client:  offline.NewClient(port, manager, store, keys, monitor),
		Hub:     sse.NewHub(),
		MQTT:    mqtt.NewClient(cfg.MQTT),
		Cleanup: cleanup.NewCleanupService(manager, cfg.Cleanup),
	}, nil
}

// Close schließt die Datenbank
func (a *App) Close() error {
	return db.Close(a.db)
}

// Handler baut den HTTP-Router der Steuer-API
func (a *App) Handler() (http.Handler, error) {
	translator, err := middleware.NewTranslator(a.cfg.Server.Language)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize translations: %w", err)
	}

	apiHandler := handlers.NewAPIHandler(a.Manager, a.Engine, a.Cache, a.Monitor, a.Hub)
	proxyHandler := handlers.NewProxyHandler(a.Client)
	return api.NewRouter(a.cfg.Server, apiHandler, proxyHandler, translator), nil
}

// Run startet Hintergrunddienste und den HTTP-Server und blockiert, bis ctx
// endet oder der Server scheitert. Danach wird geordnet heruntergefahren.
func (a *App) Run(ctx context.Context) error {
	handler, err := a.Handler()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if n := a.Cache.Restore(ctx); n > 0 {
		log.Infof("Restored %d cache entries from snapshot", n)
	}
	a.Cache.StartSweeper(ctx, a.cfg.Cache.SweepInterval)

	go a.Hub.Run(ctx)
	defer a.Hub.Attach(a.Bus)()

	a.startMQTT()
	defer a.MQTT.Stop()

	a.Monitor.Start(ctx, a.cfg.Connectivity.ProbeInterval)

	if err := a.Engine.Start(ctx); err != nil {
		return err
	}
	defer a.Engine.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Cleanup.Start(gctx)
		return nil
	})
	g.Go(func() error {
		log.Infof("Starting control API on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Hub zuerst beenden, damit offene SSE-Verbindungen das Herunterfahren nicht blockieren
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		log.Info("Shutting down control API...")
		return server.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	if err := a.Cache.Flush(context.Background()); err != nil {
		log.WithError(err).Warn("Failed to write cache snapshot")
	}
	return runErr
}

func (a *App) startMQTT() {
	if !a.cfg.MQTT.Enabled {
		log.Info("MQTT is disabled in config.")
		return
	}

	a.MQTT.OnConnectivity(func(online bool) {
		a.Monitor.SetOnline(online, "mqtt")
	})

	state := homeassistant.NewStatePublisher(a.MQTT, a.Manager.Stats)
	state.Attach(a.Bus)
	a.Monitor.OnChange(state.PublishConnectivity)

	discovery := homeassistant.NewDiscoveryManager(a.MQTT, a.cfg.MQTT)
	a.MQTT.OnConnect(func() {
		if a.cfg.MQTT.HomeAssistant {
			if err := discovery.Register(); err != nil {
				log.Warnf("Home Assistant discovery incomplete: %v", err)
			}
		}
		state.PublishConnectivity(a.Monitor.IsOnline())
		state.PublishQueue(context.Background())
	})

	a.MQTT.Attach(a.Bus)

	if err := a.MQTT.Start(); err != nil {
		log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
	}
}
