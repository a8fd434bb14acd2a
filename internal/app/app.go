package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/sharetube/watchparty/internal/controller"
	"github.com/sharetube/watchparty/internal/metric"
	"github.com/sharetube/watchparty/internal/repository/broker"
	natsbridge "github.com/sharetube/watchparty/internal/repository/broker/nats"
	redisbridge "github.com/sharetube/watchparty/internal/repository/broker/redis"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	roominmemory "github.com/sharetube/watchparty/internal/repository/room/inmemory"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/redisclient"
	"golang.org/x/sync/errgroup"
)

const (
	BrokerNone  = "none"
	BrokerRedis = "redis"
	BrokerNATS  = "nats"

	shutdownTimeout = 30 * time.Second
)

type AppConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	LogLevel          string        `json:"log_level"`
	MembersLimit      int           `json:"members_limit"`
	EvictionGrace     time.Duration `json:"eviction_grace"`
	KeepaliveInterval time.Duration `json:"keepalive_interval"`
	SubscriberBuffer  int           `json:"subscriber_buffer"`
	Broker            string        `json:"broker"`
	InstanceID        string        `json:"instance_id"`
	RedisHost         string        `json:"redis_host"`
	RedisPort         int           `json:"redis_port"`
	RedisPassword     string        `json:"-"`
	NatsURL           string        `json:"nats_url"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535")
	}
	if cfg.MembersLimit < 1 {
		return fmt.Errorf("members limit must be greater than 0")
	}
	if cfg.EvictionGrace <= 0 {
		return fmt.Errorf("eviction grace must be positive")
	}
	if cfg.KeepaliveInterval <= 0 {
		return fmt.Errorf("keepalive interval must be positive")
	}
	if cfg.SubscriberBuffer < 1 {
		return fmt.Errorf("subscriber buffer must be greater than 0")
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	switch cfg.Broker {
	case "", BrokerNone:
	case BrokerRedis:
		if cfg.RedisHost == "" {
			return fmt.Errorf("redis host is required for the redis broker")
		}
	case BrokerNATS:
		if cfg.NatsURL == "" {
			return fmt.Errorf("nats url is required for the nats broker")
		}
	default:
		return fmt.Errorf("unknown broker %q", cfg.Broker)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	level := slog.LevelInfo
	if s == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}

	return level, nil
}

// bridge relays frames between instances sharing a broker.
type bridge interface {
	Publish(ctx context.Context, roomID string, frame []byte) error
	Listen(ctx context.Context, handler broker.Handler) error
}

type remoteApplier interface {
	ApplyRemote(ctx context.Context, roomID string, frame []byte) error
}

type App struct {
	cfg     AppConfig
	handler http.Handler
	service remoteApplier
	bridge  bridge
	closers []func()
}

// New builds the server and connects to the configured broker. Close releases
// the broker connection.
func New(ctx context.Context, cfg *AppConfig) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logLevel, _ := parseLogLevel(cfg.LogLevel)
	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}
	logger := slog.New(&h)
	slog.SetDefault(logger)

	a := &App{cfg: *cfg}
	if a.cfg.InstanceID == "" {
		a.cfg.InstanceID = uuid.NewString()
	}

	if err := a.connectBroker(ctx); err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	relay := inmemory.NewRelay(a.cfg.SubscriberBuffer)
	registry := roominmemory.NewRegistry(roominmemory.Config{
		Clock:       clock,
		Grace:       a.cfg.EvictionGrace,
		Subscribers: relay,
		OnCreate:    func(string) { metric.RoomCreated() },
		OnEvict:     func(string) { metric.RoomEvicted() },
	})

	roomService := room.NewService(registry, relay, a.bridge, clock, a.cfg.MembersLimit)
	a.service = roomService
	a.handler = controller.NewController(roomService, logger, clock, a.cfg.KeepaliveInterval).GetMux()

	return a, nil
}

func (a *App) connectBroker(ctx context.Context) error {
	switch a.cfg.Broker {
	case BrokerRedis:
		rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
			Host:     a.cfg.RedisHost,
			Port:     a.cfg.RedisPort,
			Password: a.cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		a.closers = append(a.closers, func() { rc.Close() })
		a.bridge = redisbridge.NewBridge(rc, a.cfg.InstanceID)
	case BrokerNATS:
		nc, err := natsbridge.Connect(a.cfg.NatsURL, "watchparty-"+a.cfg.InstanceID)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { drainNATS(nc) })
		a.bridge = natsbridge.NewBridge(nc, a.cfg.InstanceID)
	}

	if a.bridge != nil {
		slog.InfoContext(ctx, "connected broker", "broker", a.cfg.Broker, "instanceID", a.cfg.InstanceID)
	}
	return nil
}

func drainNATS(nc *nats.Conn) {
	if err := nc.Drain(); err != nil {
		nc.Close()
	}
}

func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Serve serves HTTP on ln and relays broker traffic until ctx is done, then
// shuts the server down gracefully.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{Handler: a.handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.InfoContext(gctx, "starting server", "address", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	})
	if a.bridge != nil {
		g.Go(func() error {
			return a.bridge.Listen(gctx, a.service.ApplyRemote)
		})
	}

	return g.Wait()
}

// Run serves cfg until SIGINT, SIGTERM, SIGHUP or SIGQUIT.
func Run(ctx context.Context, cfg *AppConfig) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	return a.Serve(ctx, ln)
}
