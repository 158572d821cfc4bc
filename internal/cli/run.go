package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/lacquerai/laqcore/internal/actions"
	"github.com/lacquerai/laqcore/internal/agentimpl"
	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/checkpoint"
	"github.com/lacquerai/laqcore/internal/config"
	"github.com/lacquerai/laqcore/internal/engine"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/internal/metrics"
	"github.com/lacquerai/laqcore/internal/registry"
	"github.com/lacquerai/laqcore/internal/server"
	"github.com/lacquerai/laqcore/internal/tui"
	"github.com/lacquerai/laqcore/pkg/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	runInputs     map[string]string
	runInputJSON  string
	runTimeout    time.Duration
	runNoTUI      bool
	runCheckpoint string
	runRemote     bool
)

var runCmd = &cobra.Command{
	Use:   "run [workflow.laq.yaml]",
	Short: "Execute a workflow document",
	Long: `Execute a workflow document locally with real-time progress reporting.

This command parses and validates the document, binds the provided
inputs, and executes its steps with structured concurrency and
fail-fast cancellation.`,
	Example: `
  laq run workflow.laq.yaml
  laq run workflow.laq.yaml --input key=value
  laq run workflow.laq.yaml --input-json '{"key": "value"}'
  laq run workflow.laq.yaml --output json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			log.Info().Msg("received interrupt signal, shutting down gracefully")
			cancel()
		}()

		if runTimeout > 0 {
			var timeoutCancel context.CancelFunc
			ctx, timeoutCancel = context.WithTimeout(ctx, runTimeout)
			defer timeoutCancel()
		}

		inputsMap := make(map[string]interface{})
		if runInputJSON != "" {
			if err := json.Unmarshal([]byte(runInputJSON), &inputsMap); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s invalid --input-json: %s\n", errorIcon, err)
				os.Exit(1)
			}
		}
		for k, v := range runInputs {
			inputsMap[k] = v
		}

		if err := runWorkflow(ctx, cmd, args[0], inputsMap); err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringToStringVarP(&runInputs, "input", "i", map[string]string{}, "input parameters (key=value)")
	runCmd.Flags().StringVarP(&runInputJSON, "input-json", "j", "", "input parameters as JSON")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall execution timeout")
	runCmd.Flags().BoolVar(&runNoTUI, "no-tui", false, "disable the live progress display")
	runCmd.Flags().StringVar(&runCheckpoint, "resume", "", "resume from a checkpoint saved under this run ID")
	runCmd.Flags().BoolVar(&runRemote, "remote", false, "expose the run's event stream over HTTP for remote observers")
}

func runWorkflow(ctx context.Context, cmd *cobra.Command, file string, inputs map[string]interface{}) error {
	wf, err := ast.LoadFile(file)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", errorIcon, err)
		return err
	}

	if wf.Version != "" {
		if err := checkDocumentVersion(wf.Version); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", errorIcon, err)
			return err
		}
	}

	cfg, err := config.Load(config.DefaultSearchPaths()...)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s failed to load configuration: %s\n", errorIcon, err)
		return err
	}
	if wf.Config != nil {
		cfg = cfg.WithStages(wf.Config.DefaultStages, wf.Config.NamedStages)
	}

	reg := buildRegistry()
	metricsReg := prometheus.NewRegistry()

	var sink events.Sink
	var listener *tui.Listener
	var spin *runSpinner
	eventCh := make(chan events.ExecutionEvent, 64)
	sink = events.Chan(eventCh)

	if runRemote {
		srv := server.New()
		mux := http.NewServeMux()
		mux.Handle("/", srv.Handler())
		mux.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
		httpSrv := &http.Server{Addr: cfg.ServerAddr(), Handler: mux}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("remote event server stopped")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		remoteSink := srv.Sink()
		chanSink := sink
		sink = func(e events.ExecutionEvent) {
			chanSink(e)
			remoteSink(e)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s streaming events at http://%s/events/stream\n", infoIcon, cfg.ServerAddr())
	}

	quiet := viper.GetBool("quiet")
	switch {
	case !runNoTUI && !quiet:
		listener = tui.NewListener(wf.Name)
		listener.StartListening(eventCh)
	case !quiet:
		spin = newRunSpinner(cmd.ErrOrStderr(), fmt.Sprintf("running %s...", wf.Name))
		spin.start()
		go func() {
			for range eventCh {
			}
		}()
	default:
		go func() {
			for range eventCh {
			}
		}()
	}

	resumeFrom := loadResumeCheckpoint(ctx, runCheckpoint)

	runner := engine.NewRunner(reg, metrics.NewRecorder(metricsReg))
	result, runErr := runner.Run(ctx, wf, inputs, cfg, log.Logger, sink, resumeFrom)
	close(eventCh)
	if listener != nil {
		listener.StopListening()
	}

	if runErr != nil {
		if spin != nil {
			spin.fail(fmt.Sprintf("workflow failed: %s", runErr))
		}
		if runCheckpoint != "" {
			saveFailureCheckpoint(ctx, wf, inputs, result)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s workflow failed: %s\n", errorIcon, runErr)
		return runErr
	}

	if spin != nil {
		spin.succeed(fmt.Sprintf("%s completed", wf.Name))
	}

	outputResults(cmd.OutOrStdout(), wf.Name, result)
	return nil
}

func buildRegistry() *registry.Registry {
	reg := registry.New()

	_ = reg.RegisterAction("shell", actions.Shell)
	_ = reg.RegisterAction("text_diff", actions.TextDiff)

	if anthropicAgent, err := agentimpl.NewAnthropicAgent(agentimpl.AnthropicConfig{}); err == nil {
		_ = reg.RegisterAgent("anthropic", anthropicAgent)
	}
	if openaiAgent, err := agentimpl.NewOpenAIAgent(agentimpl.OpenAIConfig{}); err == nil {
		_ = reg.RegisterAgent("openai", openaiAgent)
		_ = reg.RegisterGenerator("openai", openaiAgent)
	}

	return reg
}

func saveFailureCheckpoint(ctx context.Context, wf *ast.Workflow, inputs map[string]interface{}, result *engine.WorkflowResult) {
	store, err := checkpoint.NewLocalStore(".laq/checkpoints")
	if err != nil {
		log.Error().Err(err).Msg("failed to open checkpoint store")
		return
	}

	// The last entry is the step that failed; it gets retried on resume,
	// so it's excluded from both the restored-results map and the resume
	// index. Everything before it completed and is restored verbatim.
	completed := result.StepResults
	nextStepIndex := len(result.StepResults)
	if !result.Success && len(result.StepResults) > 0 {
		completed = result.StepResults[:len(result.StepResults)-1]
		nextStepIndex = len(completed)
	}

	results := make(map[string]*execcontext.StepResult, len(completed))
	for _, r := range completed {
		results[r.Name] = r
	}

	cp := &checkpoint.Checkpoint{
		WorkflowName:  wf.Name,
		RunID:         runCheckpoint,
		Inputs:        inputs,
		Results:       results,
		NextStepIndex: nextStepIndex,
		SavedAt:       time.Now(),
	}

	if err := store.Save(ctx, cp); err != nil {
		log.Error().Err(err).Msg("failed to save checkpoint")
	}
}

// loadResumeCheckpoint loads the checkpoint saved under runID, if --resume
// named one and it exists. A missing checkpoint is not an error: the run
// simply starts fresh, the same as if --resume had not been passed.
func loadResumeCheckpoint(ctx context.Context, runID string) *checkpoint.Checkpoint {
	if runID == "" {
		return nil
	}

	store, err := checkpoint.NewLocalStore(".laq/checkpoints")
	if err != nil {
		log.Error().Err(err).Msg("failed to open checkpoint store")
		return nil
	}

	cp, err := store.Load(ctx, runID)
	if err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("no checkpoint found to resume from; starting fresh")
		return nil
	}

	return cp
}

func outputResults(w io.Writer, workflowName string, result *engine.WorkflowResult) {
	switch viper.GetString("output") {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	case "yaml":
		out, _ := yaml.Marshal(result)
		fmt.Fprint(w, string(out))
	default:
		printExecutionSummary(w, result)
	}
}

func printExecutionSummary(w io.Writer, result *engine.WorkflowResult) {
	if viper.GetBool("quiet") {
		return
	}

	fmt.Fprintln(w)
	if result.Success {
		fmt.Fprintf(w, "%s workflow completed successfully (%s)\n", successIcon, formatDuration(result.DurationMS))
	} else {
		fmt.Fprintf(w, "%s workflow failed (%s)\n", errorIcon, formatDuration(result.DurationMS))
	}

	if len(result.StepResults) == 0 {
		return
	}

	byName := make(map[string]*execcontext.StepResult, len(result.StepResults))
	names := make([]string, 0, len(result.StepResults))
	for _, r := range result.StepResults {
		byName[r.Name] = r
		names = append(names, r.Name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Steps"))
	b.WriteString("\n\n")
	for _, name := range names {
		r := byName[name]
		icon := successIcon
		if !r.Success {
			icon = errorIcon
		}
		fmt.Fprintf(&b, "%s %s\n", icon, r.Name)
	}
	fmt.Fprint(w, b.String())
}

func formatDuration(ms int64) string {
	return fmt.Sprintf("%.2fs", time.Duration(ms*int64(time.Millisecond)).Seconds())
}
