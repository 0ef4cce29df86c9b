package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/hpetrik/styletransfer-be/internal/api/domain"
	"github.com/hpetrik/styletransfer-be/internal/client"
	"github.com/hpetrik/styletransfer-be/internal/config"
	"github.com/hpetrik/styletransfer-be/shared/logger"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultServer := os.Getenv("STYLE_API_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}

	serverURL := flag.String("server", defaultServer, "Style-transfer API base URL")
	configPath := flag.String("config", os.Getenv("STYLE_CLIENT_CONFIG_PATH"), "Optional path to a configuration file with a client section")
	imagePath := flag.String("image", "", "Path to the input image (required)")
	modelID := flag.String("model", "", "Model identifier (required)")
	strength := flag.Float64("strength", domain.DefaultStrength, "Denoising strength")
	cfgScale := flag.Float64("cfg-scale", domain.DefaultCfgScale, "Guidance scale")
	steps := flag.Int("steps", domain.DefaultSteps, "Sampling step count")
	sampler := flag.String("sampler", domain.DefaultSampler, "Sampler name")
	deadline := flag.Duration("deadline", 0, "Hard job deadline (overrides the config file)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	if *imagePath == "" || *modelID == "" {
		flag.Usage()
		return fmt.Errorf("both -image and -model are required")
	}

	appLogger, err := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.TimeOnly,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	var clientCfg config.ClientConfig
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		clientCfg = cfg.Client
	}
	clientCfg = resolveTiming(clientCfg, *deadline)

	api := client.NewAPI(*serverURL, clientCfg.RequestTimeout, appLogger.Logger)
	local := client.NewLocalResults()
	chain := client.NewFallbackChain(client.NewAPISink(api), local)

	poller := client.NewPoller(&client.PollerConfig{
		API:           api,
		Chain:         chain,
		Logger:        appLogger.Logger,
		PollInterval:  clientCfg.PollInterval,
		JobDeadline:   clientCfg.JobDeadline,
		AnimationTick: clientCfg.AnimationTick,
		AnimationStep: clientCfg.AnimationStep,
		AnimationCap:  clientCfg.AnimationCap,
		OnUpdate: func(u client.Update) {
			appLogger.Info("Progress",
				slog.String("state", string(u.State)),
				slog.Int("progress", u.Progress),
				slog.String("step", u.CurrentStep),
			)
		},
	})

	params := domain.Parameters{
		Strength: *strength,
		CfgScale: *cfgScale,
		Steps:    *steps,
		Sampler:  *sampler,
	}

	outcome, err := poller.Run(context.Background(), *imagePath, *modelID, params)
	if err != nil {
		return fmt.Errorf("submission failed: %w", err)
	}

	if outcome.State == client.StateFailed {
		return fmt.Errorf("job %s failed: %s", outcome.JobID, outcome.ErrorMessage)
	}

	fmt.Printf("Job %s completed with %d result(s)\n", outcome.JobID, len(outcome.Results))
	for _, r := range outcome.Results {
		location := r.ImageURL
		if len(location) > 64 {
			location = location[:64] + "..."
		}
		degradedMark := ""
		if r.Degraded {
			degradedMark = " (degraded fallback)"
		}
		fmt.Printf("  %s seed=%d sampler=%s%s\n    %s\n", r.ID, r.Seed, r.Parameters.Sampler, degradedMark, location)
	}

	if !outcome.SavedDurably {
		appLogger.Warn("Results were not persisted durably, kept in local session list",
			slog.Int("local_count", len(local.Items())),
		)
	}

	return nil
}

// resolveTiming layers the -deadline flag over the config file values.
// Anything still zero falls through to the client package defaults.
func resolveTiming(cfg config.ClientConfig, deadlineFlag time.Duration) config.ClientConfig {
	if deadlineFlag > 0 {
		cfg.JobDeadline = deadlineFlag
	}
	return cfg
}
