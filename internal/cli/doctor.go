package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/synheart/vitalsynth/internal/config"
	"github.com/synheart/vitalsynth/internal/synth"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment and print connection info",
	Long:  `Validates the configuration, checks port availability, the history store and the band policy, and prints connection examples.`,
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🏥 vitalsynth Environment Check")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Go Version:        %s\n", runtime.Version())
	fmt.Fprintf(out, "OS/Arch:           %s/%s\n\n", runtime.GOOS, runtime.GOARCH)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	problems := 0
	check := func(ok bool, good, bad string) {
		if ok {
			fmt.Fprintf(out, "✅ %s\n", good)
			return
		}
		problems++
		fmt.Fprintf(out, "❌ %s\n", bad)
	}

	err = cfg.Validate()
	check(err == nil, "Configuration is valid", fmt.Sprintf("Configuration: %v", err))

	if isPortAvailable(cfg.Port) {
		fmt.Fprintf(out, "✅ Port %d is available\n", cfg.Port)
	} else {
		fmt.Fprintf(out, "⚠️  Port %d is in use\n", cfg.Port)
		fmt.Fprintf(out, "   Use --port or VITALSYNTH_PORT to specify a different port\n")
	}

	policy, err := synth.PolicyOrDefault(cfg.PolicyFile)
	check(err == nil, fmt.Sprintf("Band policy %q is valid", policyName(policy)), fmt.Sprintf("Band policy: %v", err))

	switch cfg.Store {
	case config.StoreRedis:
		err := pingRedis(cfg)
		check(err == nil, fmt.Sprintf("Redis reachable at %s", cfg.RedisAddr), fmt.Sprintf("Redis %s: %v", cfg.RedisAddr, err))
	default:
		ok, msg := checkDataFile(cfg.DataFile)
		check(ok, msg, msg)
	}

	if cfg.MQTTBroker != "" {
		fmt.Fprintf(out, "ℹ️  MQTT ingestion enabled: %s (%s)\n", cfg.MQTTBroker, cfg.MQTTTopic)
	}

	fmt.Fprintln(out)
	printConnectionExamples(out, cfg.Port)

	if problems > 0 {
		return fmt.Errorf("%d check(s) failed", problems)
	}
	fmt.Fprintln(out, "✅ Environment check complete")
	return nil
}

func policyName(p *synth.Policy) string {
	if p == nil {
		return ""
	}
	return p.Name
}

// checkDataFile accepts a readable file or a missing one (created on first save).
func checkDataFile(path string) (bool, string) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return true, fmt.Sprintf("Data file %s does not exist yet (created on first flush)", path)
	}
	if err != nil {
		return false, fmt.Sprintf("Data file %s is not readable: %v", path, err)
	}
	f.Close()
	return true, fmt.Sprintf("Data file %s is readable", path)
}

func pingRedis(cfg *config.Config) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

func isPortAvailable(port int) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

func printConnectionExamples(out io.Writer, port int) {
	base := fmt.Sprintf("http://localhost:%d", port)

	fmt.Fprintln(out, "📡 Connection Examples:")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Send a reading:")
	fmt.Fprintf(out, "  curl -X POST %s/api/sensor-data \\\n", base)
	fmt.Fprintln(out, "    -H 'Content-Type: application/json' \\")
	fmt.Fprintln(out, `    -d '{"device_id":"esp32-1","heart_rate":78,"spo2":97,"temperature":36.6}'`)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Predict glucose:")
	fmt.Fprintf(out, "  curl -X POST %s/api/glucose/predict \\\n", base)
	fmt.Fprintln(out, `    -d '{"heart_rate":78,"spo2":97,"temperature":36.6,"mode":"single-shot"}'`)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Live feed (JavaScript):")
	fmt.Fprintf(out, "  const ws = new WebSocket('ws://localhost:%d/ws');\n", port)
	fmt.Fprintln(out, "  ws.onmessage = (event) => console.log(JSON.parse(event.data));")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Live feed (SSE):")
	fmt.Fprintf(out, "  curl -N %s/events\n", base)
	fmt.Fprintln(out)
}
