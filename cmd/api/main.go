package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/focusquest/internal/account"
	"example.com/focusquest/internal/api"
	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/cache"
	"example.com/focusquest/internal/config"
	"example.com/focusquest/internal/consumer"
	"example.com/focusquest/internal/events"
	"example.com/focusquest/internal/focus"
	"example.com/focusquest/internal/gateway"
	"example.com/focusquest/internal/leaderboard"
	"example.com/focusquest/internal/outbox"
	persistence "example.com/focusquest/internal/persistence/postgres"
	"example.com/focusquest/internal/prefs"
	"example.com/focusquest/internal/profile"
	httptransport "example.com/focusquest/internal/transport/http"
	"example.com/focusquest/internal/views"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool, persistence.WithTopics(cfg.ProfileTopic, cfg.ReconcileTopic))

	var gatewayOpts []gateway.Option
	var invalidator leaderboard.Invalidator
	if cfg.RedisAddress != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		cached := cache.NewLeaderboard(repo, rdb)
		gatewayOpts = append(gatewayOpts, gateway.WithProfileStore(cached))
		invalidator = cached
	}
	gw := gateway.New(gateway.NewAuthClient(cfg.AuthURL, cfg.AuthAnonKey), repo, gatewayOpts...)

	prefStore, err := prefs.OpenSQLite(ctx, cfg.PreferencesDSN)
	if err != nil {
		log.Fatalf("failed to open preference store: %v", err)
	}
	defer prefStore.Close()

	feed := auth.NewFeed(nil)
	defer feed.Close()

	tokens := auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}
	profiles := profile.NewService(gw.Profiles, gw.Sessions, profile.WithRetryDelay(cfg.ProfileRetryDelay))
	accounts := account.NewService(gw, profiles, feed, tokens, cfg.PublicURL)
	directory := account.NewDirectory(feed, gw.Profiles)
	defer directory.Close()

	board := leaderboard.NewBoard(gw.Profiles,
		leaderboard.WithTopN(cfg.LeaderboardTopN),
		leaderboard.WithPreview(cfg.LeaderboardPreviewN),
	)
	reload := leaderboard.NewReloadHandler(board, invalidator, nil)

	// A local completion refreshes this host's board right away; other hosts follow
	// through the profile change topic.
	onCompletion := func(c focus.Completion) {
		if c.Err != nil {
			return
		}
		reloadCtx, reloadCancel := context.WithTimeout(ctx, 10*time.Second)
		defer reloadCancel()
		if err := reload.Handle(reloadCtx, consumer.Message{EventType: events.TypeProfileChanged}); err != nil {
			log.Printf("leaderboard refresh after completion failed: %v", err)
		}
	}

	registry := views.NewRegistry(gw, prefStore,
		views.WithIdleTTL(cfg.ViewIdleTTL),
		views.WithEngineOptions(focus.WithCompletionHook(onCompletion)),
	)
	defer registry.Close()
	stopFollowing := registry.Follow(feed)
	defer stopFollowing()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		registry.Run(ctx)
	}()

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	schemaRegistry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, schemaRegistry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	go dispatcher.Start(ctx)

	// Every API host needs every profile change, so each gets its own consumer group.
	host, _ := os.Hostname()
	groupID := cfg.ConsumerGroupID + "-leaderboard-" + strings.ReplaceAll(host, ".", "-")
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         groupID,
		Topic:           cfg.ProfileTopic,
		MinBytes:        1,
		MaxBytes:        10e6,
		MaxWait:         500 * time.Millisecond,
		CommitInterval:  time.Second,
		StartOffset:     kafka.LastOffset,
		ReadLagInterval: -1,
	})
	router := consumer.NewRouter().Route(events.TypeProfileChanged, reload)
	proc := consumer.NewProcessor(reader, router)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer reader.Close()
		log.Printf("leaderboard feed started (topic=%s, group=%s)", cfg.ProfileTopic, groupID)
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("leaderboard feed stopped with error: %v", err)
		}
	}()

	handler := api.NewHandler(api.Deps{
		Views:         registry,
		Accounts:      accounts,
		Directory:     directory,
		Profiles:      profiles,
		Leaderboard:   board,
		SessionCookie: cfg.SessionCookie,
		LandingPath:   cfg.LandingPath,
		Location:      cfg.Location(),
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	skipInfra := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	}
	identity := auth.NewMiddleware(tokens, cfg.SessionCookie, cfg.GuestCookie, skipInfra)
	gate := auth.NewGate(auth.RoutePolicy{
		Protected:   cfg.ProtectedPaths,
		AuthOnly:    cfg.AuthPaths,
		LoginPath:   cfg.LoginPath,
		LandingPath: cfg.LandingPath,
	})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.Chain(mux,
		httptransport.RequestLogger(nil),
		httptransport.CORS(cfg.CORSOrigin),
		identity.Wrap,
		gate.Wrap,
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("focusquest api listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	dispatcher.Wait()
	wg.Wait()
}
