// Command vexmqd runs the MQTT broker: it loads config.yml, wires the
// session/subscription/auth/store backends it selects, and serves TCP
// and (optionally) WebSocket listeners until told to shut down.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vexmq/broker/internal/admin"
	"github.com/vexmq/broker/internal/auth"
	authmemory "github.com/vexmq/broker/internal/auth/memory"
	authsqlite "github.com/vexmq/broker/internal/auth/sqlite"
	"github.com/vexmq/broker/internal/broker"
	"github.com/vexmq/broker/internal/config"
	"github.com/vexmq/broker/internal/interceptor"
	"github.com/vexmq/broker/internal/logger"
	"github.com/vexmq/broker/internal/registry"
	"github.com/vexmq/broker/internal/session"
	"github.com/vexmq/broker/internal/store"
	storememory "github.com/vexmq/broker/internal/store/memory"
	storesqlite "github.com/vexmq/broker/internal/store/sqlite"
	"github.com/vexmq/broker/internal/subscription"
	"github.com/vexmq/broker/internal/transport"
	"github.com/vexmq/broker/internal/will"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to config.yml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(parseLoggerConfig(cfg.Logging))
	logger.InitGlobalLogger(parseLoggerConfig(cfg.Logging))

	messages, authenticator, authorizator, closeDB := wireStorage(cfg, log)
	if closeDB != nil {
		defer closeDB()
	}

	processor := broker.New(
		session.NewStore(),
		subscription.New(),
		registry.New(),
		will.New(),
		messages,
		authenticator,
		authorizator,
		interceptor.New(),
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.RunRetrySweep(ctx)

	tcpSrv := transport.NewTCP(":"+cfg.Server.Port, processor, cfg.Server.MaxConnections, cfg.RateLimit)
	if err := tcpSrv.Start(ctx); err != nil {
		log.Fatal("tcp listener failed", logger.ErrorAttr(err))
	}
	log.Info("tcp listener started", logger.String("port", cfg.Server.Port))

	var wsSrv *transport.TCPServer
	if cfg.WebSocket.Port != "" {
		wsSrv, err = transport.NewWebSocket(":"+cfg.WebSocket.Port, cfg.WebSocket.Path, processor, cfg.Server.MaxConnections, cfg.RateLimit)
		if err != nil {
			log.Fatal("websocket listener failed", logger.ErrorAttr(err))
		}
		if err := wsSrv.Start(ctx); err != nil {
			log.Fatal("websocket listener failed", logger.ErrorAttr(err))
		}
		log.Info("websocket listener started", logger.String("port", cfg.WebSocket.Port))
	}

	listeners := []stopper{tcpSrv}
	if wsSrv != nil {
		listeners = append(listeners, wsSrv)
	}

	if cfg.Admin.Addr != "" {
		adminSrv := admin.New(processor)
		if err := adminSrv.Start(ctx, "tcp", cfg.Admin.Addr); err != nil {
			log.Fatal("admin listener failed", logger.ErrorAttr(err))
		}
		log.Info("admin listener started", logger.String("addr", cfg.Admin.Addr))
		listeners = append(listeners, adminSrv)
	}

	waitForShutdown(log, cancel, listeners...)
}

// wireStorage selects the message store and auth backends named by
// cfg, opening a shared sqlite handle when either needs one.
func wireStorage(cfg *config.Config, log *logger.Logger) (store.MessageStore, auth.Authenticator, auth.Authorizator, func()) {
	var db *sql.DB
	var closeDB func()

	needsDB := cfg.Store.Backend == "sqlite" || cfg.Auth.Mode == "sqlite"
	if needsDB {
		var err error
		db, err = sql.Open("sqlite3", cfg.Store.Path)
		if err != nil {
			log.Fatal("failed to open sqlite db", logger.ErrorAttr(err))
		}
		closeDB = func() { db.Close() }
	}

	var messages store.MessageStore
	switch cfg.Store.Backend {
	case "sqlite":
		s, err := storesqlite.Open(db)
		if err != nil {
			log.Fatal("failed to migrate sqlite store", logger.ErrorAttr(err))
		}
		messages = s
	default:
		messages = storememory.New()
	}

	var authenticator auth.Authenticator
	var authorizator auth.Authorizator
	switch cfg.Auth.Mode {
	case "sqlite":
		a, err := authsqlite.New(db)
		if err != nil {
			log.Fatal("failed to migrate sqlite auth", logger.ErrorAttr(err))
		}
		authenticator = a
		authorizator = auth.AllowAllAuthorizator{}
	case "memory":
		authenticator = authmemory.New()
		authorizator = auth.AllowAllAuthorizator{}
	case "single-topic":
		authenticator = auth.AllowAllAuthenticator{}
		authorizator = auth.SingleTopicAuthorizator{Filter: cfg.Auth.SingleTopicFilter}
	default:
		authenticator = auth.AllowAllAuthenticator{}
		authorizator = auth.AllowAllAuthorizator{}
	}

	return messages, authenticator, authorizator, closeDB
}

func parseLoggerConfig(cfg config.Logging) logger.Config {
	level := logger.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = logger.LevelDebug
	case "warn":
		level = logger.LevelWarn
	case "error":
		level = logger.LevelError
	}

	return logger.Config{
		Level:   level,
		Format:  cfg.Format,
		Output:  os.Stdout,
		Service: "vexmqd",
	}
}

// stopper is satisfied by every listener type main wires up; it lets
// waitForShutdown tear all of them down uniformly regardless of
// transport or admin package.
type stopper interface {
	Stop() error
}

func waitForShutdown(log *logger.Logger, cancel context.CancelFunc, servers ...stopper) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")

	cancel()
	for _, srv := range servers {
		if err := srv.Stop(); err != nil {
			log.LogError(err, "error stopping listener")
		}
	}
	time.Sleep(200 * time.Millisecond)
	log.Info("shutdown complete")
}
