// chatserver is the tripCast group-messaging coordinator: a WebSocket server
// that authenticates travelers at the handshake, gates every event on current
// group membership, persists messages to Postgres, and fans broadcasts out to
// room subscribers over NATS.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/auth"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/hub"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/messaging"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/ratelimit"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/store"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/ws"
)

// Config is the environment-driven server configuration.
type Config struct {
	ListenAddr     string        `envconfig:"LISTEN_ADDR" default:":8080"`
	WorkerPoolSize int           `envconfig:"WORKER_POOL_SIZE" default:"256"`
	MaxConnections int           `envconfig:"MAX_CONNECTIONS" default:"100000"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`

	PostgresURL    string `envconfig:"POSTGRES_URL" required:"true"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"file://migrations"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	NATSURL   string `envconfig:"NATS_URL"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
}

// gatedAuth layers the per-user connect rate limit on top of credential
// validation, so a reconnect storm from one account is refused at the
// handshake.
type gatedAuth struct {
	inner   *auth.Authenticator
	limiter *ratelimit.Limiter
}

func (g *gatedAuth) Authenticate(ctx context.Context, r *http.Request) (string, error) {
	userID, err := g.inner.Authenticate(ctx, r)
	if err != nil {
		return "", err
	}
	allowed, _ := g.limiter.Allow(ctx, userID, ratelimit.RuleConnect)
	if !allowed {
		return "", fmt.Errorf("connection rate limit exceeded for user %s", userID)
	}
	return userID, nil
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("config error: %v", err)
	}

	// --- Postgres ---
	if err := store.Migrate(cfg.MigrationsPath, cfg.PostgresURL); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := store.Open(openCtx, cfg.PostgresURL)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	if cfg.NATSURL != "" {
		natsConfig.URL = cfg.NATSURL
	}
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Redis (rate limiting) ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	limiter := ratelimit.NewLimiter(redisClient)

	authenticator := &gatedAuth{
		inner:   auth.New([]byte(cfg.JWTSecret), st),
		limiter: limiter,
	}

	serverConfig := ws.ServerConfig{
		ListenAddr:     cfg.ListenAddr,
		WorkerPoolSize: cfg.WorkerPoolSize,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}

	log.Printf("tripCast chat server starting")
	log.Printf("  listen_addr:     %s", serverConfig.ListenAddr)
	log.Printf("  worker_pool:     %d", serverConfig.WorkerPoolSize)
	log.Printf("  max_connections: %d", serverConfig.MaxConnections)
	log.Printf("  read_timeout:    %s", serverConfig.ReadTimeout)
	log.Printf("  write_timeout:   %s", serverConfig.WriteTimeout)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  redis_addr:      %s", cfg.RedisAddr)

	dispatcher := ws.NewMessageDispatcher(nil)
	server := ws.NewServer(serverConfig, authenticator, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	h := hub.New(st, natsClient, server, limiter)
	h.Register(dispatcher, server)

	// Graceful shutdown: closed connections drain through the disconnect
	// callbacks (presence, room subscriptions) before the process exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		natsClient.Close()
		if err := redisClient.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		if err := st.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
