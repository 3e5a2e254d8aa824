// Package node provides a reusable program host that can be embedded in any
// binary (daemon, tests, etc.).
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/events"
	klog "github.com/Klingon-tech/pumpbox/internal/log"
	"github.com/Klingon-tech/pumpbox/internal/metrics"
	"github.com/Klingon-tech/pumpbox/internal/rpc"
	"github.com/Klingon-tech/pumpbox/internal/runtime"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/internal/storage"
)

// StatePrefix namespaces program state inside the node database.
var StatePrefix = []byte("p/")

// eventHistory is the number of recent events kept for program_recentEvents.
const eventHistory = 1024

// Node is a fully-initialized program host.
type Node struct {
	cfg     *config.Config
	program *config.ProgramConfig
	logger  zerolog.Logger

	// Core
	db       storage.DB
	store    *state.Store
	rt       *runtime.Runtime
	metrics  *metrics.Metrics
	recorder *events.Recorder

	// Servers
	rpcServer     *rpc.Server
	metricsServer *http.Server
	metricsLn     net.Listener

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, program config, storage, state, runtime, RPC) but does NOT bind
// any listener. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	if cfg != nil {
		cfg.DataDir = expandHome(cfg.DataDir)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" && !cfg.Storage.InMemory {
		logFile = filepath.Join(cfg.LogsDir(), "pumpbox.log")
	}
	if err := klog.InitWithOptions(klog.Options{
		Level:      cfg.Log.Level,
		JSON:       cfg.Log.JSON,
		File:       logFile,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   true,
	}); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// ── 2. Program config ───────────────────────────────────────────
	program, err := loadProgram(cfg)
	if err != nil {
		return nil, err
	}
	hash, err := program.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash program config: %w", err)
	}

	logger.Info().
		Str("program", program.ProgramID.String()).
		Str("name", program.Name).
		Str("network", string(cfg.Network)).
		Str("config_hash", hash.String()[:16]+"...").
		Msg("Starting PumpBox Node")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.InMemory {
		logger.Warn().Msg("State kept in memory; it is lost on shutdown")
	} else {
		logger.Info().Str("path", cfg.StateDir()).Msg("Database opened")
	}

	// ── 4. State ────────────────────────────────────────────────────
	store := state.NewStore(storage.NewPrefixDB(db, StatePrefix))
	fresh, err := store.Init(program)
	if err != nil {
		db.Close()
		if errors.Is(err, state.ErrConfigMismatch) {
			return nil, fmt.Errorf("%w: reset the state or use the original program file", err)
		}
		return nil, fmt.Errorf("init state: %w", err)
	}
	records, err := store.Records()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load records: %w", err)
	}
	if fresh {
		logger.Info().Int("allocations", len(program.Alloc)).Msg("State initialized from program config")
	} else {
		logger.Info().Int("records", len(records)).Msg("State resumed from database")
	}

	// ── 5. Metrics and events ───────────────────────────────────────
	m := metrics.New(metrics.DefaultNamespace)
	m.SetPhaseCounts(records)

	bus := events.NewBus()
	recorder := events.NewRecorder(eventHistory)
	if err := bus.Subscribe(events.TopicAll, recorder.Record); err != nil {
		db.Close()
		return nil, fmt.Errorf("subscribe recorder: %w", err)
	}
	if err := bus.Subscribe(events.TopicAll, m.ObserveEvent); err != nil {
		db.Close()
		return nil, fmt.Errorf("subscribe metrics: %w", err)
	}

	// ── 6. Runtime ──────────────────────────────────────────────────
	rt := runtime.New(program, store, runtime.Options{Bus: bus, Metrics: m})

	// ── 7. RPC server ───────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcServer = rpc.New(listenAddr(cfg.RPC.Addr, cfg.RPC.Port), rt, cfg.RPC)
		rpcServer.SetRecorder(recorder)
		rpcServer.SetMetrics(m)
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	return &Node{
		cfg:       cfg,
		program:   program,
		logger:    logger,
		db:        db,
		store:     store,
		rt:        rt,
		metrics:   m,
		recorder:  recorder,
		rpcServer: rpcServer,
		ctx:       ctx,
		cancel:    cancel,
		group:     group,
	}, nil
}

// Start binds the RPC and metrics listeners and serves them in the
// background.
func (n *Node) Start() error {
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return err
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	}

	if n.cfg.Metrics.Enabled {
		addr := listenAddr(n.cfg.Metrics.Addr, n.cfg.Metrics.Port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", n.metrics.Handler())
		n.metricsLn = ln
		n.metricsServer = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		srv := n.metricsServer
		n.group.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		n.logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics server started")
	}

	n.logger.Info().
		Str("program", n.program.ProgramID.String()).
		Bool("rpc", n.rpcServer != nil).
		Bool("metrics", n.metricsServer != nil).
		Msg("Node started successfully")
	return nil
}

// Done is closed when the node stops or a background server fails.
func (n *Node) Done() <-chan struct{} {
	return n.ctx.Done()
}

// Stop performs graceful shutdown in reverse order and returns the first
// background server error, if any.
func (n *Node) Stop() error {
	n.cancel()

	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("RPC shutdown")
		}
	}
	if n.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := n.metricsServer.Shutdown(ctx); err != nil {
			n.logger.Warn().Err(err).Msg("Metrics shutdown")
		}
		cancel()
	}
	err := n.group.Wait()

	n.rt.Bus().WaitAsync()
	if n.db != nil {
		if cerr := n.db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close database: %w", cerr)
		}
	}

	n.logger.Info().Msg("Goodbye!")
	return err
}

// Runtime returns the program runtime.
func (n *Node) Runtime() *runtime.Runtime {
	return n.rt
}

// Program returns the program config the node serves.
func (n *Node) Program() *config.ProgramConfig {
	return n.program
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// MetricsAddr returns the address the metrics server is listening on.
func (n *Node) MetricsAddr() string {
	if n.metricsLn == nil {
		return ""
	}
	return n.metricsLn.Addr().String()
}
