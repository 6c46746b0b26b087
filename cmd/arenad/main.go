// Package main provides the arena daemon: the ledger, the arena program, an
// in-process oracle node and the ArenaService gRPC endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/config"
	"github.com/cory-johannsen/goldarena/internal/events"
	"github.com/cory-johannsen/goldarena/internal/game/arena"
	"github.com/cory-johannsen/goldarena/internal/game/reward"
	"github.com/cory-johannsen/goldarena/internal/gameserver"
	"github.com/cory-johannsen/goldarena/internal/ledger"
	"github.com/cory-johannsen/goldarena/internal/observability"
	"github.com/cory-johannsen/goldarena/internal/oracle"
	"github.com/cory-johannsen/goldarena/internal/server"
	"github.com/cory-johannsen/goldarena/internal/storage/postgres"
	"github.com/cory-johannsen/goldarena/internal/storage/sqlite"
	"github.com/cory-johannsen/goldarena/internal/wallet"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server.Name)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("initializing tracing", zap.Error(err))
	}
	lifecycle.AddCloser("tracing", shutdownTracing)

	store, err := openStore(ctx, cfg, lifecycle, logger)
	if err != nil {
		logger.Fatal("opening ledger store", zap.Error(err))
	}

	bus := events.NewBus(logger.Named("events"))
	l := ledger.New(
		ledger.WithStore(store),
		ledger.WithBus(bus),
		ledger.WithLogger(logger.Named("ledger")),
	)
	if err := l.Restore(ctx); err != nil {
		logger.Fatal("restoring ledger", zap.Error(err))
	}

	programID, err := cfg.Arena.Program()
	if err != nil {
		logger.Fatal("parsing arena.program_id", zap.Error(err))
	}
	admin, err := cfg.Arena.AdminKey()
	if err != nil {
		logger.Fatal("parsing arena.admin", zap.Error(err))
	}

	queue, err := ensureQueue(ctx, l, cfg.Oracle)
	if err != nil {
		logger.Fatal("creating oracle queue", zap.Error(err))
	}

	src, err := oracle.NewSource(cfg.Oracle.Source, cfg.Oracle.Seed)
	if err != nil {
		logger.Fatal("creating randomness source", zap.Error(err))
	}
	node := oracle.NewNode(l, src, oracle.NodeConfig{
		Workers:      cfg.Oracle.Workers,
		Redeliveries: cfg.Oracle.Redeliveries,
		Delay:        cfg.Oracle.Delay,
		Backlog:      cfg.Oracle.Backlog,
	}, logger.Named("oracle"))

	rw, err := reward.New(reward.Config{
		Program:  programID,
		Seed:     cfg.Reward.Seed,
		Decimals: cfg.Reward.Decimals,
	})
	if err != nil {
		logger.Fatal("deriving reward mint", zap.Error(err))
	}

	prog, err := arena.New(arena.Config{
		ProgramID:         programID,
		Admin:             admin,
		Queue:             queue,
		MaxResult:         cfg.Arena.MaxResult,
		StrictReplayGuard: cfg.Arena.StrictReplayGuard,
	}, l, rw, node, logger.Named("arena"))
	if err != nil {
		logger.Fatal("creating arena program", zap.Error(err))
	}
	node.RegisterCallback(programID, prog.ConsumeRandomness)

	history, _ := store.(ledger.History)
	svc := gameserver.NewArenaService(prog, bus, history, logger.Named("rpc"))
	grpcServer := gameserver.NewServer(svc, logger.Named("grpc"),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)

	lifecycle.Add("notifications", events.NewLogSink(bus, logger.Named("notifications")))
	lifecycle.Add("oracle", node)
	lifecycle.Add("grpc", &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", cfg.GameServer.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.GameServer.Addr(), err)
			}
			logger.Info("gRPC server listening",
				zap.String("addr", lis.Addr().String()),
			)
			return grpcServer.Serve(lis)
		},
		StopFn: func() {
			grpcServer.GracefulStop()
		},
	})

	logger.Info("arena daemon initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("grpc_addr", cfg.GameServer.Addr()),
		zap.String("program_id", programID.String()),
		zap.String("reward_mint", rw.Mint().String()),
		zap.String("queue", queue.String()),
		zap.String("storage", cfg.Storage.Driver),
		zap.Uint64("last_seq", l.Seq()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// openStore opens the configured ledger store and registers its release.
func openStore(ctx context.Context, cfg config.Config, lc *server.Lifecycle, logger *zap.Logger) (ledger.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		lc.Add("postgres-health", healthMonitor(pool, logger))
		lc.AddCloser("postgres", func(context.Context) error {
			pool.Close()
			return nil
		})
		return postgres.NewLedgerStore(pool.DB()), nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.Storage.SQLitePath))
		lc.AddCloser("sqlite", func(context.Context) error { return s.Close() })
		return s, nil
	default:
		logger.Warn("using in-memory ledger store; state is lost on exit")
		return ledger.NewMemoryStore(), nil
	}
}

// healthMonitor runs pool.Monitor as a lifecycle service.
func healthMonitor(pool *postgres.Pool, logger *zap.Logger) server.Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &server.FuncService{
		StartFn: func() error {
			pool.Monitor(ctx, 30*time.Second, logger)
			return nil
		},
		StopFn: cancel,
	}
}

// ensureQueue creates the configured oracle queue on first start. Feeds
// created by the arena need no queue signature, so the queue is
// unpermissioned.
func ensureQueue(ctx context.Context, l *ledger.Ledger, cfg config.OracleConfig) (authority.Address, error) {
	operator, err := operatorKey(cfg.OperatorKeyFile)
	if err != nil {
		return authority.Zero, err
	}
	var queue authority.Address
	err = l.Execute(ctx, "create_queue", func(tx *ledger.Tx) error {
		var err error
		queue, err = oracle.EnsureQueue(tx, cfg.Queue, true, operator.Signer())
		return err
	})
	return queue, err
}

func operatorKey(path string) (wallet.Keypair, error) {
	if path == "" {
		return wallet.Generate()
	}
	return wallet.Load(path)
}
