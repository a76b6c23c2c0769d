// Copyright © 2024 Friendship Engine Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command friendshipsvc bootstraps the friendship interaction engine:
// construction happens in dependency order (Identity Cache -> Store -> Chat
// Backend -> Registry -> Bus -> Engine -> Facade; the Engine takes the Bus
// publisher, so it comes after the Bus), mirroring the teacher's own
// Start(ctx, config, client, server) bootstrap shape in
// internal/rpc/relation/friend.go and pkg/common/startrpc/start.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openimsdk/tools/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/decentraland/friendship-interaction-engine/internal/chatbackend"
	"github.com/decentraland/friendship-interaction-engine/internal/config"
	"github.com/decentraland/friendship-interaction-engine/internal/engine"
	"github.com/decentraland/friendship-interaction-engine/internal/eventbus"
	"github.com/decentraland/friendship-interaction-engine/internal/identitycache"
	"github.com/decentraland/friendship-interaction-engine/internal/registry"
	"github.com/decentraland/friendship-interaction-engine/internal/rpcfacade"
	"github.com/decentraland/friendship-interaction-engine/internal/store/postgres"
)

var (
	_ rpcfacade.IdentityResolver = (*identitycache.Cache)(nil)
	_ rpcfacade.LocalNotifier    = (*registry.Registry)(nil)
	_ engine.Publisher           = (*eventbus.Publisher)(nil)
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the service config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.ZError(ctx, "friendshipsvc exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// Postgres pool and schema, backing the Friendship Store (C2).
	pool, err := pgxpool.New(ctx, postgresDSN(cfg.Postgres))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, postgres.Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Identity Cache (C1).
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Address,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	provider := identitycache.NewHTTPProvider(cfg.IdentityProvider.BaseURL, cfg.IdentityProvider.Timeout)
	identity := identitycache.New(rdb, provider, cfg.IdentityProvider.TokenCacheTTL)

	// Friendship Store (C2).
	st := postgres.New(pool)

	// Chat Backend Adapter (C4).
	chat := chatbackend.New(cfg.ChatBackend.BaseURL, cfg.ChatBackend.Timeout)

	// Subscription Registry (C6).
	reg := registry.New(cfg.RPC.SubscriberQueue, cfg.RPC.DeliverTimeout)

	// Event Bus Adapter (C7).
	publisher, err := eventbus.NewPublisher(cfg.Kafka.Address, cfg.Kafka.FriendshipsTopic)
	if err != nil {
		return fmt.Errorf("connect kafka producer: %w", err)
	}
	defer publisher.Close()

	subscriber, err := eventbus.NewSubscriber(cfg.Kafka.Address, cfg.Kafka.ConsumerGroupID, cfg.Kafka.FriendshipsTopic, reg)
	if err != nil {
		return fmt.Errorf("connect kafka consumer: %w", err)
	}
	defer subscriber.Close()
	go func() {
		if err := subscriber.Run(ctx); err != nil {
			log.ZError(ctx, "friendship events subscriber stopped", err)
		}
	}()

	// Interaction Engine (C5).
	eng := engine.New(st, chat, publisher)

	// RPC Facade (C8).
	facade := rpcfacade.New(identity, st, eng, reg, cfg.RPC.PageSize)
	server := rpcfacade.NewServer(facade, reg)

	// Maintenance job refreshing the registry's active-subscriber gauge,
	// mirroring the teacher's CronTask section (pkg/common/config's
	// CronTask block). Identity-cache bindings need no pruning job of
	// their own: rockscache's TTL'd Redis keys expire on their own.
	c := cron.New()
	if _, err := c.AddFunc("@every 1m", func() {
		n := reg.ActiveSubscribers()
		rpcfacade.SetActiveSubscribers(n)
		log.ZDebug(ctx, "active subscriber gauge refreshed", "count", n)
	}); err != nil {
		return fmt.Errorf("schedule subscriber gauge refresh: %w", err)
	}
	c.Start()
	defer c.Stop()

	mux := http.NewServeMux()
	mux.Handle("/ws", server)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.RPC.Port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ChatBackend.Timeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.ZInfo(ctx, "friendshipsvc listening", "port", cfg.RPC.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func postgresDSN(p config.Postgres) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?pool_max_conns=%d&pool_min_conns=%d",
		p.Username, p.Password, p.Host, p.Port, p.Database, p.MaxPoolSize, p.MinPoolSize)
}
