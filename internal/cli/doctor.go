package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/wordbatch/internal/config"
	"github.com/dshills/wordbatch/internal/llm"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configured endpoint accepts the credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadDotEnv(); err != nil {
			return err
		}
		level, err := parseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		cfg, err := config.Load(config.LoadOptions{
			File:      flagConfig,
			Overrides: buildOverrides(),
			APIKey:    flagAPIKey,
		})
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		exitCode = checkEndpoint(cmd.Context(), cfg, llm.New(llm.Options{
			Endpoint:    cfg.Endpoint,
			Model:       cfg.Model,
			APIKey:      cfg.APIKey,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxOutputTokens,
			Timeout:     cfg.Timeout(),
			Logger:      newLogger(level, os.Stderr),
		}))
		return nil
	},
}

// checkEndpoint sends a one-word prompt through gen and maps the outcome to
// an exit code.
func checkEndpoint(ctx context.Context, cfg config.Config, gen llm.Generator) int {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintf(os.Stdout, "Endpoint: %s\nModel:    %s\n", cfg.Endpoint, cfg.Model)
	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stdout, "API key:  not set")
	} else {
		fmt.Fprintln(os.Stdout, "API key:  set")
	}

	start := time.Now()
	resp, err := gen.Generate(ctx, "ping")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if llm.IsAuthError(err) {
			return ExitAuthError
		}
		return ExitRuntimeError
	}
	fmt.Fprintf(os.Stdout, "OK (%d chars in %.1fs)\n", len(resp.Text), time.Since(start).Seconds())
	return ExitSuccess
}

func init() {
	doctorCmd.Flags().StringVar(&flagAPIKey, "api-key", "", "API key (overrides config and environment)")
	doctorCmd.Flags().StringVar(&flagEndpoint, "endpoint", "", "Chat completions endpoint URL")
	doctorCmd.Flags().StringVar(&flagModel, "model", "", "Model identifier")
	doctorCmd.Flags().IntVar(&flagTimeout, "timeout", 0, "Per-request timeout in seconds")
}
