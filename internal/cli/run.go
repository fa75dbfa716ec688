package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/wordbatch/internal/batch"
	"github.com/dshills/wordbatch/internal/cache"
	"github.com/dshills/wordbatch/internal/config"
	"github.com/dshills/wordbatch/internal/llm"
	"github.com/dshills/wordbatch/internal/output"
	"github.com/dshills/wordbatch/internal/prompt"
	"github.com/dshills/wordbatch/internal/state"
)

// Run flags
var (
	flagInputDir          string
	flagInputFile         string
	flagOutputDir         string
	flagPromptFile        string
	flagAPIKey            string
	flagEndpoint          string
	flagModel             string
	flagMode              string
	flagConcurrency       int
	flagMaxInputTokens    int
	flagChunkTargetTokens int
	flagTimeout           int
	flagNoTables          bool
	flagRedact            bool
	flagNoCache           bool
	flagResume            bool
	flagRetryFailed       bool
)

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagInputDir, "input-dir", "", "Folder scanned recursively for .docx files")
	cmd.Flags().StringVar(&flagInputFile, "input-file", "", "Process a single .docx file")
	cmd.Flags().StringVar(&flagOutputDir, "output-dir", "", "Output folder (default: the input folder)")
	cmd.Flags().StringVar(&flagPromptFile, "prompt-file", "", "Prompt template file (default: $"+prompt.EnvPromptFile+" or built-in)")
	cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "API key (overrides config and environment)")
	cmd.Flags().StringVar(&flagEndpoint, "endpoint", "", "Chat completions endpoint URL")
	cmd.Flags().StringVar(&flagModel, "model", "", "Model identifier")
	cmd.Flags().StringVar(&flagMode, "mode", "", "Long document mode (truncate, chunk)")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "Number of documents processed in parallel")
	cmd.Flags().IntVar(&flagMaxInputTokens, "max-input-tokens", 0, "Token budget per document in truncate mode")
	cmd.Flags().IntVar(&flagChunkTargetTokens, "chunk-target-tokens", 0, "Target chunk size in chunk mode")
	cmd.Flags().IntVar(&flagTimeout, "timeout", 0, "Per-request timeout in seconds")
	cmd.Flags().BoolVar(&flagNoTables, "no-tables", false, "Leave tables out of the extracted text")
	cmd.Flags().BoolVar(&flagRedact, "redact", false, "Scrub secrets from document text before sending")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Bypass the response cache")
	cmd.Flags().BoolVar(&flagResume, "resume", false, "Skip documents already resolved by an earlier run")
	cmd.Flags().BoolVar(&flagRetryFailed, "retry-failed", false, "Only re-run documents that failed last time (implies --resume)")
	cmd.MarkFlagsMutuallyExclusive("input-dir", "input-file")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagEndpoint != "" {
		m["endpoint"] = flagEndpoint
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagMode != "" {
		m["long_doc_mode"] = flagMode
	}
	if flagConcurrency > 0 {
		m["concurrency"] = strconv.Itoa(flagConcurrency)
	}
	if flagMaxInputTokens > 0 {
		m["max_input_tokens"] = strconv.Itoa(flagMaxInputTokens)
	}
	if flagChunkTargetTokens > 0 {
		m["chunk_target_tokens"] = strconv.Itoa(flagChunkTargetTokens)
	}
	if flagTimeout > 0 {
		m["timeout_sec"] = strconv.Itoa(flagTimeout)
	}
	if flagNoTables {
		m["include_tables"] = "false"
	}
	if flagRedact {
		m["redact_secrets"] = "true"
	}
	if flagNoCache {
		m["cache.enabled"] = "false"
	}
	return m
}

// resolveInput returns the folder to scan and, in single-file mode, the
// file allow-list.
func resolveInput() (string, []string, error) {
	switch {
	case flagInputFile != "":
		abs, err := filepath.Abs(flagInputFile)
		if err != nil {
			return "", nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", nil, fmt.Errorf("input file: %w", err)
		}
		if info.IsDir() {
			return "", nil, fmt.Errorf("input file %s is a directory; use --input-dir", abs)
		}
		if !strings.EqualFold(filepath.Ext(abs), ".docx") {
			return "", nil, fmt.Errorf("input file %s is not a .docx file", abs)
		}
		return filepath.Dir(abs), []string{abs}, nil
	case flagInputDir != "":
		abs, err := filepath.Abs(flagInputDir)
		if err != nil {
			return "", nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", nil, fmt.Errorf("input directory: %w", err)
		}
		if !info.IsDir() {
			return "", nil, fmt.Errorf("input directory %s is not a directory", abs)
		}
		return abs, nil, nil
	}
	return "", nil, errors.New("one of --input-dir or --input-file is required")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Review every .docx document in a folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadDotEnv(); err != nil {
			return err
		}
		level, err := parseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		inputDir, onlyFiles, err := resolveInput()
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
		tpl, err := prompt.LoadTemplate(flagPromptFile)
		if err != nil {
			return err
		}
		if _, err := prompt.Validate(tpl); err != nil {
			return fmt.Errorf("prompt template: %w", err)
		}

		outputDir := flagOutputDir
		if outputDir == "" {
			outputDir = inputDir
		}
		if outputDir, err = filepath.Abs(outputDir); err != nil {
			return err
		}

		exitCode = runBatch(batchJob{
			cfg:         cfg,
			template:    tpl,
			inputDir:    inputDir,
			onlyFiles:   onlyFiles,
			outputDir:   outputDir,
			level:       level,
			resume:      flagResume || flagRetryFailed,
			retryFailed: flagRetryFailed,
		})
		return nil
	},
}

// batchJob is a fully validated run request.
type batchJob struct {
	cfg         config.Config
	template    string
	inputDir    string
	onlyFiles   []string
	outputDir   string
	level       slog.Level
	resume      bool
	retryFailed bool
}

// runBatch executes job and returns the process exit code.
func runBatch(job batchJob) int {
	store := output.NewStore(job.outputDir)
	if err := store.Prepare(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitRuntimeError
	}
	logFile, err := openRunLog(filepath.Join(store.LogsDir(), output.LogFileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitRuntimeError
	}
	defer logFile.Close()
	logger := newLogger(job.level, os.Stderr, logFile)

	statePath := job.cfg.StateDB
	if statePath == "" {
		statePath = filepath.Join(job.outputDir, state.DefaultFileName)
	}
	st, err := state.Open(statePath)
	if err != nil {
		logger.Error("opening state database failed", "path", statePath, "error", err)
		return ExitRuntimeError
	}
	defer st.Close()

	var previous map[string]batch.Status
	if job.resume {
		if previous, err = previousStatuses(context.Background(), st); err != nil {
			logger.Error("loading previous run state failed", "error", err)
			return ExitRuntimeError
		}
		logger.Info("resuming", "knownTasks", len(previous))
	}

	respCache, err := cache.New(job.cfg.Cache.Enabled, job.cfg.Cache.Dir, job.cfg.Cache.TTLSeconds)
	if err != nil {
		logger.Warn("response cache unavailable, continuing without it", "error", err)
		respCache, _ = cache.New(false, "", 0)
	}
	client := llm.New(llm.Options{
		Endpoint:    job.cfg.Endpoint,
		Model:       job.cfg.Model,
		APIKey:      job.cfg.APIKey,
		Temperature: job.cfg.Temperature,
		MaxTokens:   job.cfg.MaxOutputTokens,
		Timeout:     job.cfg.Timeout(),
		Logger:      logger,
	})
	auth := &authWatch{next: llm.NewCached(client, respCache, cache.RequestKey{
		Endpoint:    job.cfg.Endpoint,
		Model:       job.cfg.Model,
		Temperature: job.cfg.Temperature,
		MaxTokens:   job.cfg.MaxOutputTokens,
	}, logger)}

	persist := &stateObserver{store: st, logger: logger}
	runner, err := batch.New(job.cfg, batch.Options{
		InputDir:  job.inputDir,
		OnlyFiles: job.onlyFiles,
		Store:     store,
		Template:  job.template,
		Generator: auth,
		Observer:  batch.Observers{&consoleObserver{w: os.Stdout}, persist},
		Logger:    logger,
	})
	if err != nil {
		logger.Error("creating runner failed", "error", err)
		return ExitRuntimeError
	}
	persist.runID = runner.RunID()
	if err := st.BeginRun(context.Background(), state.Run{
		ID:        runner.RunID(),
		InputDir:  job.inputDir,
		OutputDir: job.outputDir,
	}); err != nil {
		logger.Error("recording run failed", "error", err)
		return ExitRuntimeError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopSignals := handleInterrupts(runner, cancel, logger)
	defer stopSignals()

	if _, err := runner.Scan(previous); err != nil {
		logger.Error("scanning input failed", "error", err)
		return ExitRuntimeError
	}
	summary, err := runner.Run(ctx, batch.RunOptions{RetryFailedOnly: job.retryFailed})
	if err != nil {
		logger.Error("run failed", "error", err)
		return ExitRuntimeError
	}
	fmt.Fprintf(os.Stdout, "Reports: %s\nSummary: %s\n", store.ResultsDir(), store.SummaryPath())

	switch {
	case runner.Cancelled() || ctx.Err() != nil:
		return ExitInterrupted
	case summary.Failed > 0 && auth.seen.Load():
		return ExitAuthError
	case summary.Failed > 0:
		return ExitTasksFailed
	}
	return ExitSuccess
}

// handleInterrupts cancels the runner on the first interrupt and the
// context on the second. The returned func stops listening.
func handleInterrupts(runner *batch.Runner, cancel context.CancelFunc, logger *slog.Logger) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		count := 0
		for {
			select {
			case <-sigCh:
				count++
				if count == 1 {
					logger.Warn("interrupt received; finishing in-flight requests (interrupt again to abort)")
					runner.Cancel()
					continue
				}
				logger.Warn("second interrupt received; aborting in-flight requests")
				cancel()
				return
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func init() {
	addRunFlags(runCmd)
}
