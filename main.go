package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"staffing-engine/config"
	"staffing-engine/erlang"
	"staffing-engine/feeds"
	"staffing-engine/formatter"
	"staffing-engine/gap"
	"staffing-engine/logging"
	"staffing-engine/metrics"
	"staffing-engine/monitor"
	"staffing-engine/optimizer"
	"staffing-engine/orchestrator"
	"staffing-engine/store"
	"staffing-engine/stream"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "staffing-engine",
	Short:         "Real-time call-center staffing recommendations",
	Long:          "staffing-engine polls live queue telemetry, sizes each queue with Erlang C, classifies staffing gaps and re-optimizes the shift schedule when understaffing is urgent.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run recommendation cycles continuously",
	RunE:  runRun,
}

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one recommendation cycle and print the snapshot",
	RunE:  runCycle,
}

var erlangCmd = &cobra.Command{
	Use:   "erlang",
	Short: "Compute the agents required for a call volume",
	RunE:  runErlang,
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Plan a schedule from forecast and roster files",
	RunE:  runOptimize,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show stored recommendations for a queue",
	RunE:  runHistory,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/staffing-engine/config.toml)")

	cycleCmd.Flags().String("format", "text", "Output format: text|json|csv")
	cycleCmd.Flags().Bool("wait", false, "Keep process running after completion to allow for metric scraping")

	erlangCmd.Flags().Float64("calls", 0, "Calls per hour")
	erlangCmd.Flags().Duration("aht", 3*time.Minute, "Average handle time")
	erlangCmd.Flags().Float64("target", 0.8, "Service level target, between 0 and 1")
	erlangCmd.Flags().Duration("answer", 20*time.Second, "Target answer time")
	erlangCmd.Flags().Duration("patience", 0, "Mean caller patience (0 disables abandonment)")
	erlangCmd.Flags().Float64("abandon", 0, "Observed abandon rate, used when patience is not set")

	optimizeCmd.Flags().String("format", "text", "Output format: text|json|csv")
	optimizeCmd.Flags().String("start", "", "Horizon start, RFC3339 (default now)")
	optimizeCmd.Flags().Int64("seed", 0, "Random seed (0 uses the configured seed or the clock)")

	historyCmd.Flags().String("queue", "", "Queue ID (required)")
	historyCmd.Flags().Int("limit", 20, "Number of cycles to show")
	historyCmd.MarkFlagRequired("queue")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(erlangCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

// engine wires an orchestrator over the configured file feeds.
func (a *app) engine(telemetryRequired bool, publishers ...orchestrator.Publisher) (*orchestrator.Engine, error) {
	f := a.cfg.Feeds
	if telemetryRequired && f.TelemetryPath == "" {
		return nil, errors.New("feeds.telemetry_path is not configured")
	}
	var forecast monitor.ForecastSource
	if f.ForecastPath != "" {
		forecast = feeds.NewForecastFile(f.ForecastPath)
	}
	var roster orchestrator.RosterSource
	if f.RosterPath != "" {
		roster = feeds.NewRosterFile(f.RosterPath)
	}

	queues := a.cfg.QueueConfigs()
	mon := monitor.New(a.cfg.MonitorConfig(), queues, feeds.NewTelemetryFile(f.TelemetryPath), forecast, a.logger)
	model := erlang.New(a.cfg.Erlang)
	return orchestrator.NewEngine(
		a.cfg.EngineSettings(),
		mon,
		model,
		gap.New(a.cfg.GapThresholds()),
		optimizer.New(a.cfg.OptimizerConfig()),
		forecast,
		roster,
		a.logger,
		orchestrator.WithPublishers(publishers...),
	), nil
}

func (a *app) openStore() (*store.DB, error) {
	path := a.cfg.Store.Path
	if !filepath.IsAbs(path) {
		dir, err := config.ConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, path)
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// serveMetrics exposes /metrics until ctx is done.
func (a *app) serveMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.logger.Info().Str("addr", addr).Msg("metrics server listening on /metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

func (a *app) pushMetrics() {
	url := a.cfg.Metrics.PushGatewayURL
	if url == "" {
		return
	}
	if err := push.New(url, a.cfg.Metrics.Job).Gatherer(metrics.Registry).Push(); err != nil {
		a.logger.Error().Err(err).Str("url", url).Msg("pushing to Pushgateway")
		return
	}
	a.logger.Info().Msg("metrics pushed to Pushgateway")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	publishers := []orchestrator.Publisher{orchestrator.MetricsPublisher{}}
	if a.cfg.Store.Enabled {
		db, err := a.openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		if keep := a.cfg.Store.KeepCycles; keep > 0 {
			if n, err := db.Prune(ctx, keep); err != nil {
				a.logger.Warn().Err(err).Msg("pruning stored cycles")
			} else if n > 0 {
				a.logger.Info().Int64("deleted", n).Msg("pruned stored cycles")
			}
		}
		publishers = append(publishers, db)
	}

	streamErr := make(chan error, 1)
	if a.cfg.Stream.Enabled {
		hub := stream.NewHub(a.logger)
		publishers = append(publishers, hub)
		go func() { streamErr <- stream.ListenAndServe(ctx, a.cfg.Stream.Addr, a.cfg.Stream.Path, hub) }()
	}

	engine, err := a.engine(true, publishers...)
	if err != nil {
		return err
	}
	a.serveMetrics(ctx)

	driverErr := make(chan error, 1)
	go func() { driverErr <- orchestrator.NewDriver(engine, a.cfg.DriverSettings(), a.logger).Run(ctx) }()

	select {
	case err := <-driverErr:
		return err
	case err := <-streamErr:
		cancel()
		<-driverErr
		return err
	}
}

func runCycle(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	wait, _ := cmd.Flags().GetBool("wait")
	if format != "text" && format != "json" && format != "csv" {
		return fmt.Errorf("format must be one of: text, json, csv (got: %s)", format)
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	publishers := []orchestrator.Publisher{orchestrator.MetricsPublisher{}}
	if a.cfg.Store.Enabled {
		db, err := a.openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		publishers = append(publishers, db)
	}
	engine, err := a.engine(true, publishers...)
	if err != nil {
		return err
	}
	if wait {
		a.serveMetrics(ctx)
	}

	snap, err := engine.RunCycle(ctx)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		out, err := formatter.FormatJSON(snap)
		if err != nil {
			return err
		}
		fmt.Println(out)
	case "csv":
		fmt.Print(formatter.FormatCSV(snap))
	default:
		fmt.Print(formatter.FormatText(snap))
	}

	a.pushMetrics()
	if wait && a.cfg.Metrics.Addr != "" {
		a.logger.Info().Msg("process kept alive for metric scraping, press Ctrl+C to exit")
		<-ctx.Done()
	}
	return nil
}

func runErlang(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	calls, _ := flags.GetFloat64("calls")
	aht, _ := flags.GetDuration("aht")
	target, _ := flags.GetFloat64("target")
	answer, _ := flags.GetDuration("answer")
	patience, _ := flags.GetDuration("patience")
	abandon, _ := flags.GetFloat64("abandon")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	req, err := erlang.New(cfg.Erlang).Required(erlang.Input{
		ArrivalRate:        calls,
		AHT:                aht,
		TargetServiceLevel: target,
		TargetAnswerTime:   answer,
		AbandonRate:        abandon,
		Patience:           patience,
	})
	if err != nil {
		return err
	}

	fmt.Printf("offered load      %.2f erlangs\n", req.OfferedLoad)
	fmt.Printf("required agents   %d\n", req.Required)
	fmt.Printf("service level     %.1f%% in %s\n", req.AchievedServiceLevel*100, answer)
	fmt.Printf("wait probability  %.1f%%\n", req.WaitProbability*100)
	fmt.Printf("avg speed answer  %s\n", req.AverageSpeedOfAnswer.Round(time.Second))
	fmt.Printf("occupancy         %.1f%%\n", req.Occupancy*100)
	if req.Capped {
		fmt.Println("capped: load exceeds the configured agent ceiling")
	}
	return nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	format, _ := flags.GetString("format")
	startFlag, _ := flags.GetString("start")
	seed, _ := flags.GetInt64("seed")
	if format != "text" && format != "json" && format != "csv" {
		return fmt.Errorf("format must be one of: text, json, csv (got: %s)", format)
	}

	start := time.Now()
	if startFlag != "" {
		t, err := time.Parse(time.RFC3339, startFlag)
		if err != nil {
			return fmt.Errorf("parsing --start: %w", err)
		}
		start = t
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	if a.cfg.Feeds.ForecastPath == "" || a.cfg.Feeds.RosterPath == "" {
		return errors.New("feeds.forecast_path and feeds.roster_path must be configured")
	}
	if seed != 0 {
		a.cfg.Engine.Seed = seed
	}
	ctx, cancel := signalContext()
	defer cancel()

	engine, err := a.engine(false)
	if err != nil {
		return err
	}
	res, err := engine.Schedule(ctx, start)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		out, err := formatter.FormatScheduleJSON(res)
		if err != nil {
			return err
		}
		fmt.Println(out)
	case "csv":
		fmt.Print(formatter.FormatScheduleCSV(res))
	default:
		fmt.Print(formatter.FormatScheduleText(res))
	}
	a.pushMetrics()
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	queue, _ := cmd.Flags().GetString("queue")
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := loadApp()
	if err != nil {
		return err
	}
	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.QueueHistory(cmd.Context(), queue, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("No stored recommendations for queue %s\n", queue)
		return nil
	}
	for _, r := range rows {
		fmt.Printf("%s  current=%-3d required=%-3d gap=%-4d urgency=%-8s trend=%-7s sl=%.1f%% (%s)\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Current, r.Required, r.Gap,
			r.Urgency, r.Trend, r.ServiceLevel*100, r.Confidence)
	}
	return nil
}
