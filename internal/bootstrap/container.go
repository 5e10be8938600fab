package bootstrap

import (
	"context"
	"fmt"

	"youwin-client/internal/config"
	"youwin-client/internal/pkg/logger"
	"youwin-client/internal/repository/contract"
	"youwin-client/internal/repository/implementation"
	"youwin-client/internal/repository/memory"
	"youwin-client/internal/service"
	"youwin-client/internal/tracer"
	"youwin-client/pkg/cachestore"
	"youwin-client/pkg/connection"

	pktNats "youwin-client/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Container struct {
	Config *config.Config
	Logger *logger.ZapLogger
	// ConnectionLogger keeps transport chatter out of the main log.
	ConnectionLogger *logger.ZapLogger

	Cache       *cachestore.Store
	Connections *connection.Manager

	Publisher service.IPublisherService
	Consumer  service.IConsumerService
	Session   service.ISessionService

	kv             contract.KVRepository
	pubSub         *gochannel.GoChannel
	natsPub        *pktNats.Publisher
	shutdownTracer func(context.Context) error
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	// 1. Logging
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	connLogger := logger.NewIsolatedLogger(cfg.App.ConnectionLogFilePath)

	c := &Container{
		Config:           cfg,
		Logger:           sysLogger,
		ConnectionLogger: connLogger,
		shutdownTracer:   tracer.InitTracer(cfg.Tracing, sysLogger),
	}

	// 2. Cache
	kv, err := newKVRepository(ctx, cfg.Cache, sysLogger)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.kv = kv
	c.Cache = cachestore.New(kv, cfg.Cache.KeyPrefix, sysLogger)
	c.Cache.Load(ctx)

	// 3. Event bus
	c.pubSub = gochannel.NewGoChannel(gochannel.Config{}, logger.NewWatermillAdapter(sysLogger))
	c.Publisher = service.NewPublisherService(service.SessionTopic, c.pubSub, sysLogger)

	var mirror service.EventMirror
	if cfg.Events.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.Events.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "NATS mirror disabled", map[string]interface{}{"error": err.Error()})
		} else {
			c.natsPub = natsPub
			mirror = natsPub
		}
	}
	c.Consumer = service.NewConsumerService(c.pubSub, service.SessionTopic, mirror, sysLogger)

	// 4. Transport and session
	dialer := connection.NewWebSocketDialer(cfg.Server.HandshakeTimeout, nil)
	c.Connections = connection.NewManager(dialer, connection.Options{
		URL:              cfg.Server.WebSocketURL,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		WriteWait:        cfg.Server.WriteWait,
		PingPeriod:       cfg.Server.PingPeriod,
		MaxMessageBytes:  cfg.Server.MaxMessageBytes,
	}, connLogger)
	c.Session = service.NewSessionService(c.Connections, c.Cache, c.Publisher, sysLogger)

	return c, nil
}

func newKVRepository(ctx context.Context, cfg config.CacheConfig, log logger.ILogger) (contract.KVRepository, error) {
	switch cfg.Backend {
	case "memory":
		log.Info("Bootstrap", "Using in-memory cache", nil)
		return memory.NewKVRepository(), nil
	case "redis":
		kv, err := implementation.NewRedisKVRepository(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		log.Info("Bootstrap", "Using Redis cache", nil)
		return kv, nil
	default:
		kv, err := implementation.NewSQLiteKVRepository(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite cache: %w", err)
		}
		log.Info("Bootstrap", "Using SQLite cache", map[string]interface{}{"path": cfg.SQLitePath})
		return kv, nil
	}
}

// Close releases everything NewContainer acquired. The session loop must
// already be stopped.
func (c *Container) Close(ctx context.Context) {
	if c.pubSub != nil {
		if err := c.pubSub.Close(); err != nil {
			c.Logger.Warn("Bootstrap", "Failed to close event bus", map[string]interface{}{"error": err.Error()})
		}
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.kv != nil {
		if err := c.kv.Close(); err != nil {
			c.Logger.Warn("Bootstrap", "Failed to close cache backend", map[string]interface{}{"error": err.Error()})
		}
	}
	if c.shutdownTracer != nil {
		if err := c.shutdownTracer(ctx); err != nil {
			c.Logger.Warn("Bootstrap", "Failed to flush traces", map[string]interface{}{"error": err.Error()})
		}
	}
	_ = c.ConnectionLogger.Sync()
	_ = c.Logger.Sync()
}
