package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/synheart/vitalsynth/internal/api"
	"github.com/synheart/vitalsynth/internal/config"
	"github.com/synheart/vitalsynth/internal/ingest"
	"github.com/synheart/vitalsynth/internal/models"
	"github.com/synheart/vitalsynth/internal/pipeline"
	"github.com/synheart/vitalsynth/internal/store"
	"github.com/synheart/vitalsynth/internal/synth"
	"github.com/synheart/vitalsynth/internal/transport"
)

var (
	serveHost       string
	servePort       int
	serveDataFile   string
	serveStore      string
	servePolicy     string
	serveToken      string
	serveGzip       bool
	serveMQTTBroker string
	serveSeed       int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (and optional MQTT ingestion)",
	Long: `Starts a blocking HTTP server that accepts raw sensor readings, synthesizes
plausible vitals, estimates glucose and stores the result.

Settings come from the environment (VITALSYNTH_*) and an optional .env file;
flags override them.

Examples:
  vitalsynth serve
  vitalsynth serve --port 9000 --token mysecrettoken
  vitalsynth serve --store redis
  vitalsynth serve --policy night-shift.yaml --mqtt-broker tcp://localhost:1883`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host address to bind to")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on")
	serveCmd.Flags().StringVar(&serveDataFile, "data-file", "", "NDJSON history file (file store)")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "History backend: file|redis")
	serveCmd.Flags().StringVar(&servePolicy, "policy", "", "YAML band policy (built-in table if not set)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Bearer token required by delete endpoints")
	serveCmd.Flags().BoolVar(&serveGzip, "gzip", false, "Accept gzip-compressed payloads")
	serveCmd.Flags().StringVar(&serveMQTTBroker, "mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	serveCmd.Flags().Int64Var(&serveSeed, "seed", 0, "Random seed (0 = non-deterministic)")
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = serveHost
	}
	if flags.Changed("port") {
		cfg.Port = servePort
	}
	if flags.Changed("data-file") {
		cfg.DataFile = serveDataFile
	}
	if flags.Changed("store") {
		cfg.Store = serveStore
	}
	if flags.Changed("policy") {
		cfg.PolicyFile = servePolicy
	}
	if flags.Changed("token") {
		cfg.Token = serveToken
	}
	if flags.Changed("gzip") {
		cfg.AcceptGzip = serveGzip
	}
	if flags.Changed("mqtt-broker") {
		cfg.MQTTBroker = serveMQTTBroker
	}
	if flags.Changed("seed") {
		cfg.Seed = serveSeed
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	policy, err := synth.PolicyOrDefault(cfg.PolicyFile)
	if err != nil {
		return err
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(cmd.ErrOrStderr(), "\n⏹  Received interrupt signal, shutting down...")
		cancel()
	}()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	if err := st.Load(ctx); err != nil {
		st.Close()
		return fmt.Errorf("failed to load history: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("failed to flush history", zap.Error(err))
		}
	}()

	feed := make(chan models.Reading, 256)
	service := pipeline.NewService(st, pipeline.Options{
		Policy:     policy,
		Rand:       synth.NewRandomSource(cfg.Seed),
		Clock:      synth.SystemClock{Location: loc},
		Logger:     log,
		MaxHistory: cfg.MaxHistory,
		Feed:       feed,
	})

	// Live feed: pipeline -> dispatcher -> hubs
	dispatcher := transport.NewDispatcher(feed, 100, log)
	wsHub := transport.NewWebSocketHub(log)
	sseHub := transport.NewSSEHub(log)
	wsReadings, sseReadings := dispatcher.Subscribe("websocket"), dispatcher.Subscribe("sse")
	go dispatcher.Run(ctx)
	go wsHub.BroadcastFromChannel(ctx, wsReadings)
	go sseHub.BroadcastFromChannel(ctx, sseReadings)

	var ingestor *ingest.MQTTIngestor
	if cfg.MQTTBroker != "" {
		mqttCfg := ingest.MQTTConfig{
			Broker:        cfg.MQTTBroker,
			ClientID:      cfg.MQTTClientID,
			Topic:         cfg.MQTTTopic,
			PublishPrefix: cfg.MQTTPublishPrefix,
		}
		client, err := ingest.Connect(mqttCfg)
		if err != nil {
			return err
		}
		ingestor = ingest.NewMQTTIngestor(client, service, mqttCfg, log)
		if err := ingestor.Start(); err != nil {
			client.Disconnect(250)
			return err
		}
		defer ingestor.Stop()
	}

	api.Version = Version
	server := api.NewServer(api.Config{
		Host:       cfg.Host,
		Port:       cfg.Port,
		Token:      cfg.Token,
		AcceptGzip: cfg.AcceptGzip,
	}, service, api.Feeds{WebSocket: wsHub, SSE: sseHub}, log)

	printServeBanner(cmd, server.Address(), cfg, policy.Name)

	// Start server (blocks until context is cancelled)
	if err := server.Start(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("server error: %w", err)
	}

	stats := server.GetStats()
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "\n📊 Session Stats:\n")
	fmt.Fprintf(out, "   Received:    %d\n", stats.TotalReceived)
	fmt.Fprintf(out, "   Duplicates:  %d\n", stats.TotalDuplicates)
	fmt.Fprintf(out, "   Predictions: %d\n", stats.TotalPredictions)
	fmt.Fprintf(out, "   Errors:      %d\n", stats.TotalErrors)
	if ingestor != nil {
		fmt.Fprintf(out, "   MQTT:        %d ingested, %d rejected\n", ingestor.Processed(), ingestor.Failed())
	}
	for feed, dropped := range dispatcher.Drops() {
		fmt.Fprintf(out, "   Feed drops:  %d (%s)\n", dropped, feed)
	}
	fmt.Fprintln(out, "\n✓ Shutdown complete")

	return nil
}

// openStore builds the history backend selected by cfg.Store.
func openStore(cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return store.NewRedisStore(client, cfg.RedisPrefix, log), nil
	default:
		if dir := filepath.Dir(cfg.DataFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		return store.NewFileStore(cfg.DataFile, cfg.FlushEvery, log), nil
	}
}

func printServeBanner(cmd *cobra.Command, address string, cfg *config.Config, policyName string) {
	out := cmd.ErrOrStderr()

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "╔═══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║                   🫀 vitalsynth Server Started                 ║")
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out, "")
	fmt.Fprintf(out, "  Ingest:    POST %s/api/sensor-data\n", address)
	fmt.Fprintf(out, "  Glucose:   POST %s/api/glucose/predict\n", address)
	fmt.Fprintf(out, "  Health:    GET  %s/api/health/{deviceId}\n", address)
	fmt.Fprintf(out, "  Live:      %s/ws  |  %s/events\n", address, address)
	fmt.Fprintln(out, "")

	if cfg.Store == config.StoreRedis {
		fmt.Fprintf(out, "  Store:     redis %s (prefix %s)\n", cfg.RedisAddr, cfg.RedisPrefix)
	} else {
		fmt.Fprintf(out, "  Store:     %s (flush every %d)\n", cfg.DataFile, cfg.FlushEvery)
	}
	fmt.Fprintf(out, "  Policy:    %s\n", policyName)
	fmt.Fprintf(out, "  Timezone:  %s\n", cfg.Timezone)
	if cfg.MQTTBroker != "" {
		fmt.Fprintf(out, "  MQTT:      %s (%s)\n", cfg.MQTTBroker, cfg.MQTTTopic)
	}
	if cfg.Token != "" {
		fmt.Fprintln(out, "  Deletes:   bearer token required")
	}
	if cfg.AcceptGzip {
		fmt.Fprintln(out, "  Gzip:      enabled")
	}

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Waiting for readings... (Press Ctrl+C to stop)")
	fmt.Fprintln(out, "")
}
