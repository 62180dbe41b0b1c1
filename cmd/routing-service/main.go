package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"adaqueue/routing-service/internal/config"
	"adaqueue/routing-service/internal/feed"
	"adaqueue/routing-service/internal/httpapi"
	"adaqueue/routing-service/internal/hub"
	"adaqueue/routing-service/internal/metrics"
	"adaqueue/routing-service/internal/routing"
	"adaqueue/routing-service/internal/seed"
	"adaqueue/routing-service/internal/store"
	"adaqueue/routing-service/internal/store/postgres"
	"adaqueue/routing-service/internal/telemetry"
	"adaqueue/routing-service/internal/workflow"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const version = "0.3.0"

const zeroUUID = "00000000-0000-0000-0000-000000000000"

// outboxRetention keeps published events around long enough for restarts
// and debugging before cleanup removes them.
const outboxRetention = 24 * time.Hour

type eventEnvelope struct {
	Type      string          `json:"type"`
	ProfileID string          `json:"profileId"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

func main() {
	root := &cobra.Command{
		Use:     "routing-service",
		Short:   "Workflow-driven ticket routing engine",
		Version: version,
	}
	root.AddCommand(newServeCommand(), newSeedCommand())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, realtime hub and feed loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newSeedCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load profiles and workflows from a YAML fixture file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			pool, err := pgxpool.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			file, err := seed.LoadFile(path)
			if err != nil {
				return err
			}
			return seed.Apply(cmd.Context(), postgres.NewStore(pool), file)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "seed.yaml", "path to the seed YAML file")
	return cmd
}

func runServe() error {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("routing-service", version)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := postgres.NewStore(pool)
	workflows := workflow.NewStore(db)
	validator := routing.NewValidator(workflows, db)
	feeds := feed.NewRegistry(ctx, db, cfg.FeedPollInterval)

	h := hub.New()
	// Realtime broadcasts double as feed refresh triggers, so the poll
	// timer only matters when no events are flowing.
	h.AddListener(feeds.Notify)

	handler := httpapi.NewHandler(workflows, db, db, validator, feeds)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		ProfilePerMinute: cfg.RateLimitPerMinute,
		ProfileBurst:     cfg.RateLimitBurst,
	})

	routes := handler.Routes()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/", routes)
	mux.Handle("/healthz", routes)
	mux.Handle("/realtime/", newRealtimeHandler(h))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "routing-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go runOutboxPublisher(ctx, db, h, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	go func() {
		log.Printf("routing-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func newRealtimeHandler(h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			h.UpdateSubscription(client, hub.Subscription{ProfileID: parsed.ProfileID})
		}
	})
}

// runOutboxPublisher drains ticket events in (created_at, event_id) order
// and fans them out through the hub. The offset is durable so a restart
// resumes where the previous process stopped.
func runOutboxPublisher(ctx context.Context, outbox store.OutboxStore, h *hub.Hub, interval time.Duration, batchSize int) {
	offset, err := outbox.GetOffset(ctx)
	if err != nil {
		log.Printf("load offset error: %v", err)
	}
	if offset.LastEventTime.IsZero() {
		offset.LastEventTime = time.Unix(0, 0).UTC()
	}
	if offset.LastEventID == "" {
		offset.LastEventID = zeroUUID
	}
	if interval <= 0 {
		interval = time.Second
	}

	var running int32
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			continue
		}
		pollCtx, pollCancel := context.WithTimeout(ctx, 5*time.Second)
		events, err := outbox.ListOutboxEvents(pollCtx, offset, batchSize)
		pollCancel()
		if err != nil {
			log.Printf("outbox poll error: %v", err)
			atomic.StoreInt32(&running, 0)
			continue
		}
		for _, event := range events {
			offset.LastEventTime = event.CreatedAt
			offset.LastEventID = event.EventID
			env := eventEnvelope{
				Type:      event.Type,
				ProfileID: event.ProfileID,
				Payload:   event.Payload,
				CreatedAt: event.CreatedAt,
			}
			payload, _ := json.Marshal(env)
			h.Broadcast(event.ProfileID, payload)
			metrics.OutboxEventsPublished.Inc()
		}
		if len(events) > 0 {
			writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
			if err := outbox.UpdateOffset(writeCtx, offset); err != nil {
				log.Printf("update offset error: %v", err)
			}
			if err := outbox.CleanupOutbox(writeCtx, offset.LastEventTime.Add(-outboxRetention)); err != nil {
				log.Printf("cleanup outbox error: %v", err)
			}
			writeCancel()
		}
		atomic.StoreInt32(&running, 0)
	}
}
