// Package app assembles the dispatch service from configuration: the
// database pool, the road graph, caches, services and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/towgrid/dispatch/api/orders"
	"github.com/towgrid/dispatch/api/trucks"
	"github.com/towgrid/dispatch/config"
	"github.com/towgrid/dispatch/core/dispatch"
	"github.com/towgrid/dispatch/core/dispatch/logging"
	"github.com/towgrid/dispatch/core/events"
	"github.com/towgrid/dispatch/core/fleet"
	coremetrics "github.com/towgrid/dispatch/core/metrics"
	"github.com/towgrid/dispatch/core/statecache"
	"github.com/towgrid/dispatch/infra/logger"
	"github.com/towgrid/dispatch/infra/metrics"
	"github.com/towgrid/dispatch/infra/repository"
	"github.com/towgrid/dispatch/internal/eventbus"
)

// Service owns the wired components and their lifecycles.
type Service struct {
	Coordinator *dispatch.Coordinator
	Fleet       *fleet.Service

	cfg   *config.Config
	pool  *pgxpool.Pool
	cache *statecache.VehicleState
	bus   *eventbus.TypedBus[events.Event]
	audit logging.Store
	log   logger.Logger
	mux   *http.ServeMux
}

// New creates a Service from the configuration. It connects to the
// database and loads the road graph before returning.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}

	maps := repository.NewMapRepo(pool)
	g, err := maps.LoadGraph(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("load road graph: %w", err)
	}
	logg.Infof("road graph loaded: %d nodes", g.NodeCount())

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket,
		))
	}
	var sink coremetrics.MetricsSink
	switch len(sinks) {
	case 0:
		sink = coremetrics.NopSink{}
	case 1:
		sink = sinks[0]
	default:
		sink = metrics.NewMultiSink(sinks...)
	}

	var lookupSink coremetrics.CacheLookupRecorder
	if rec, ok := sink.(coremetrics.CacheLookupRecorder); ok {
		lookupSink = rec
	}
	cache := statecache.NewVehicleState(cfg.Cache, lookupSink)

	audit, err := logging.New(cfg.Audit.Backend, cfg.Audit.Path)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit store: %w", err)
	}

	bus := eventbus.NewTyped[events.Event]()

	orderRepo := repository.NewOrderRepo(pool)
	truckRepo := repository.NewTowTruckRepo(pool)
	userRepo := repository.NewUserRepo(pool)

	coord := dispatch.NewCoordinator(g, cache, orderRepo, truckRepo, userRepo, maps, logger.New("dispatch"), sink)
	coord.SetEventBus(bus)
	coord.SetAuditStore(audit)

	fleetSvc := fleet.NewService(truckRepo, cache, logger.New("fleet"), sink)
	fleetSvc.SetEventBus(bus)

	svc := &Service{
		Coordinator: coord,
		Fleet:       fleetSvc,
		cfg:         cfg,
		pool:        pool,
		cache:       cache,
		bus:         bus,
		audit:       audit,
		log:         logg,
	}
	svc.mux = svc.routes()
	return svc, nil
}

func (s *Service) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /api/order/client", orders.NewClientOrderHandler(s.Coordinator))
	mux.Handle("POST /api/order/dispatcher", orders.NewDispatcherOrderHandler(s.Coordinator))
	mux.Handle("POST /api/order/status", orders.NewStatusHandler(s.Coordinator))
	mux.Handle("GET /api/order/list", orders.NewListHandler(s.Coordinator))
	mux.Handle("GET /api/order/completed", orders.NewCompletedHandler(s.Coordinator))
	mux.Handle("GET /api/order/{id}", orders.NewGetHandler(s.Coordinator))
	mux.Handle("POST /api/tow_truck/location", trucks.NewLocationHandler(s.Fleet))
	mux.Handle("GET /api/tow_truck/nearest", trucks.NewNearestHandler(s.Coordinator, s.Fleet, s.cfg.Dispatch.DefaultSearchLimit))
	mux.Handle("GET /api/tow_truck/list", trucks.NewListHandler(s.Fleet))
	mux.Handle("GET /api/tow_truck/{id}", trucks.NewGetHandler(s.Fleet))
	mux.HandleFunc("GET /api/health_check", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Handler returns the HTTP API root.
func (s *Service) Handler() http.Handler { return s.mux }

// Run starts the cache janitors, the event log subscriber and the HTTP
// listeners, then blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.cache.Start()
	defer s.cache.Stop()

	sub := s.bus.Subscribe()
	go s.logEvents(ctx, sub)

	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Infof("listening on %s", s.cfg.HTTP.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Service) logEvents(ctx context.Context, sub <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case events.OrderCreated:
				s.log.Infof("order created: client=%d node=%d", e.ClientID, e.NodeID)
			case events.OrderDispatched:
				s.log.Infof("order dispatched: order=%d truck=%d dispatcher=%d", e.OrderID, e.TowTruckID, e.DispatcherID)
			case events.LocationUpdated:
				s.log.Debugf("truck %d moved to node %d", e.TowTruckID, e.NodeID)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	s.pool.Close()
	return s.audit.Close()
}
