package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"staffing-engine/erlang"
	customerrors "staffing-engine/errors"
	"staffing-engine/gap"
	"staffing-engine/models"
	"staffing-engine/monitor"
	"staffing-engine/optimizer"
	"staffing-engine/orchestrator"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Erlang    erlang.Config   `toml:"erlang"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Gap       GapConfig       `toml:"gap"`
	Optimizer OptimizerConfig `toml:"optimizer"`
	Queues    []QueueConfig   `toml:"queues"`
	Feeds     FeedsConfig     `toml:"feeds"`
	Store     StoreConfig     `toml:"store"`
	Stream    StreamConfig    `toml:"stream"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Log       LogConfig       `toml:"log"`
}

type EngineConfig struct {
	CadenceSeconds       int   `toml:"cadence_seconds"`
	MinRetriggerSeconds  int   `toml:"min_retrigger_seconds"`
	ProbeIntervalSeconds int   `toml:"probe_interval_seconds"`
	Workers              int   `toml:"workers"`
	BlockMinutes         int   `toml:"block_minutes"`
	HorizonBlocks        int   `toml:"horizon_blocks"`
	MaxConsecutiveBlocks int   `toml:"max_consecutive_blocks"`
	MinRestBlocks        int   `toml:"min_rest_blocks"`
	Seed                 int64 `toml:"seed"`
	// ScheduleAbove is the urgency a queue must exceed before the optimizer runs.
	ScheduleAbove string `toml:"schedule_above"`
	// TrendThreshold is the relative change between forecast buckets that counts as rising or falling.
	TrendThreshold float64 `toml:"trend_threshold"`
}

type MonitorConfig struct {
	FeedTimeoutMillis int     `toml:"feed_timeout_millis"`
	StaleAfterPolls   int     `toml:"stale_after_polls"`
	MaxAgeSeconds     int     `toml:"max_age_seconds"`
	CallsWaitingDelta int     `toml:"calls_waiting_delta"`
	LoadDelta         float64 `toml:"load_delta"`
}

type GapConfig struct {
	Low    float64 `toml:"low"`
	Medium float64 `toml:"medium"`
	High   float64 `toml:"high"`
}

type OptimizerConfig struct {
	optimizer.Config
	TimeBudgetSeconds float64 `toml:"time_budget_seconds"`
}

type QueueConfig struct {
	ID                  string  `toml:"id"`
	Skill               string  `toml:"skill"`
	TargetServiceLevel  float64 `toml:"target_service_level"`
	TargetAnswerSeconds int     `toml:"target_answer_seconds"`
	Priority            int     `toml:"priority"`
	PatienceSeconds     int     `toml:"patience_seconds"`
	DefaultAHTSeconds   int     `toml:"default_aht_seconds"`
}

type FeedsConfig struct {
	TelemetryPath string `toml:"telemetry_path"`
	ForecastPath  string `toml:"forecast_path"`
	RosterPath    string `toml:"roster_path"`
}

type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
	// KeepCycles bounds stored history; zero keeps everything.
	KeepCycles int `toml:"keep_cycles"`
}

type StreamConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	Path    string `toml:"path"`
}

type MetricsConfig struct {
	Addr           string `toml:"addr"`
	PushGatewayURL string `toml:"pushgateway_url"`
	Job            string `toml:"job"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

func DefaultConfig() Config {
	mon := monitor.DefaultConfig()
	thresholds := gap.DefaultThresholds()
	opt := optimizer.DefaultConfig()
	return Config{
		Engine: EngineConfig{
			CadenceSeconds:       60,
			MinRetriggerSeconds:  10,
			ProbeIntervalSeconds: 5,
			Workers:              4,
			BlockMinutes:         30,
			HorizonBlocks:        16,
			MaxConsecutiveBlocks: 10,
			MinRestBlocks:        1,
			ScheduleAbove:        string(models.UrgencyLow),
			TrendThreshold:       0.10,
		},
		Erlang: erlang.DefaultConfig(),
		Monitor: MonitorConfig{
			FeedTimeoutMillis: int(mon.FeedTimeout / time.Millisecond),
			StaleAfterPolls:   mon.StaleAfterPolls,
			MaxAgeSeconds:     int(mon.MaxAge / time.Second),
			CallsWaitingDelta: mon.CallsWaitingDelta,
			LoadDelta:         mon.LoadDelta,
		},
		Gap: GapConfig{Low: thresholds.Low, Medium: thresholds.Medium, High: thresholds.High},
		Optimizer: OptimizerConfig{
			Config:            opt,
			TimeBudgetSeconds: 5,
		},
		Store: StoreConfig{
			Enabled: false,
			Path:    "staffing.db",
		},
		Stream: StreamConfig{
			Enabled: false,
			Addr:    ":8081",
			Path:    "/ws",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Job:  "staffing_engine",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "staffing-engine"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads path, or the default config path when path is empty. A missing
// file at the default path yields the defaults; a missing explicit path is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			if err := applyEnvOverrides(&cfg); err != nil {
				return nil, err
			}
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"STAFFING_LOG_LEVEL":       &cfg.Log.Level,
		"STAFFING_LOG_FORMAT":      &cfg.Log.Format,
		"STAFFING_TELEMETRY_PATH":  &cfg.Feeds.TelemetryPath,
		"STAFFING_FORECAST_PATH":   &cfg.Feeds.ForecastPath,
		"STAFFING_ROSTER_PATH":     &cfg.Feeds.RosterPath,
		"STAFFING_STORE_PATH":      &cfg.Store.Path,
		"STAFFING_METRICS_ADDR":    &cfg.Metrics.Addr,
		"STAFFING_PUSHGATEWAY_URL": &cfg.Metrics.PushGatewayURL,
		"STAFFING_STREAM_ADDR":     &cfg.Stream.Addr,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	ints := map[string]*int{
		"STAFFING_CADENCE_SECONDS": &cfg.Engine.CadenceSeconds,
		"STAFFING_WORKERS":         &cfg.Engine.Workers,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = n
	}
	if v := os.Getenv("STAFFING_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing STAFFING_SEED: %w", err)
		}
		cfg.Engine.Seed = n
	}
	bools := map[string]*bool{
		"STAFFING_STORE_ENABLED":  &cfg.Store.Enabled,
		"STAFFING_STREAM_ENABLED": &cfg.Stream.Enabled,
	}
	for key, dst := range bools {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = b
	}
	return nil
}

// Validate checks the settings a running engine depends on.
func (c *Config) Validate() error {
	if len(c.Queues) == 0 {
		return &customerrors.ValidationError{Field: "queues", Value: 0, Reason: "at least one queue is required"}
	}
	seen := make(map[string]bool, len(c.Queues))
	for _, q := range c.Queues {
		if q.ID == "" {
			return &customerrors.ValidationError{Field: "queues.id", Value: q.ID, Reason: "must not be empty"}
		}
		if seen[q.ID] {
			return &customerrors.ValidationError{Field: "queues.id", Value: q.ID, Reason: "duplicate queue"}
		}
		seen[q.ID] = true
		if q.TargetServiceLevel <= 0 || q.TargetServiceLevel >= 1 {
			return &customerrors.ValidationError{Field: "queues.target_service_level", Value: q.TargetServiceLevel, Reason: "must be in (0, 1)"}
		}
		if q.TargetAnswerSeconds < 0 || q.PatienceSeconds < 0 || q.DefaultAHTSeconds < 0 {
			return &customerrors.ValidationError{Field: "queues", Value: q.ID, Reason: "durations must not be negative"}
		}
	}
	if c.Engine.CadenceSeconds <= 0 {
		return &customerrors.ValidationError{Field: "engine.cadence_seconds", Value: c.Engine.CadenceSeconds, Reason: "must be positive"}
	}
	if bound := c.CycleBound(); bound >= seconds(c.Engine.CadenceSeconds) {
		return &customerrors.ValidationError{Field: "optimizer.time_budget_seconds", Value: c.Optimizer.TimeBudgetSeconds,
			Reason: fmt.Sprintf("worst-case cycle of %s must be shorter than the cadence", bound)}
	}
	if bound := c.CycleBound(); c.Engine.MinRetriggerSeconds > 0 && bound >= seconds(c.Engine.MinRetriggerSeconds) {
		return &customerrors.ValidationError{Field: "optimizer.time_budget_seconds", Value: c.Optimizer.TimeBudgetSeconds,
			Reason: fmt.Sprintf("worst-case cycle of %s must be shorter than min_retrigger_seconds", bound)}
	}
	if c.Engine.BlockMinutes <= 0 || c.Engine.HorizonBlocks <= 0 {
		return &customerrors.ValidationError{Field: "engine.block_minutes", Value: c.Engine.BlockMinutes, Reason: "block length and horizon must be positive"}
	}
	switch models.Urgency(c.Engine.ScheduleAbove) {
	case models.UrgencyNone, models.UrgencyLow, models.UrgencyMedium, models.UrgencyHigh, models.UrgencyCritical:
	default:
		return &customerrors.ValidationError{Field: "engine.schedule_above", Value: c.Engine.ScheduleAbove, Reason: "unknown urgency"}
	}
	if !(c.Gap.High < c.Gap.Medium && c.Gap.Medium < c.Gap.Low && c.Gap.Low <= 0) {
		return &customerrors.ValidationError{Field: "gap", Value: c.Gap, Reason: "thresholds must satisfy high < medium < low <= 0"}
	}
	return nil
}

// CycleBound is the worst-case cycle duration: every feed call timing out
// plus the optimizer budget. Forecast fallbacks run one queue at a time.
func (c *Config) CycleBound() time.Duration {
	feed := time.Duration(c.Monitor.FeedTimeoutMillis) * time.Millisecond
	// telemetry fetch, trend stage, roster and horizon forecast
	calls := len(c.Queues) + 4
	return time.Duration(calls)*feed + time.Duration(c.Optimizer.TimeBudgetSeconds*float64(time.Second))
}

// QueueConfigs converts the queue section into domain queue definitions.
func (c *Config) QueueConfigs() []models.QueueConfig {
	out := make([]models.QueueConfig, 0, len(c.Queues))
	for _, q := range c.Queues {
		skill := q.Skill
		if skill == "" {
			skill = q.ID
		}
		out = append(out, models.QueueConfig{
			ID:                 q.ID,
			Skill:              skill,
			TargetServiceLevel: q.TargetServiceLevel,
			TargetAnswerTime:   seconds(q.TargetAnswerSeconds),
			Priority:           q.Priority,
			Patience:           seconds(q.PatienceSeconds),
			DefaultAHT:         seconds(q.DefaultAHTSeconds),
		})
	}
	return out
}

func (c *Config) MonitorConfig() monitor.Config {
	return monitor.Config{
		FeedTimeout:       time.Duration(c.Monitor.FeedTimeoutMillis) * time.Millisecond,
		StaleAfterPolls:   c.Monitor.StaleAfterPolls,
		MaxAge:            seconds(c.Monitor.MaxAgeSeconds),
		CallsWaitingDelta: c.Monitor.CallsWaitingDelta,
		LoadDelta:         c.Monitor.LoadDelta,
	}
}

func (c *Config) GapThresholds() gap.Thresholds {
	return gap.Thresholds{Low: c.Gap.Low, Medium: c.Gap.Medium, High: c.Gap.High}
}

func (c *Config) OptimizerConfig() optimizer.Config {
	out := c.Optimizer.Config
	out.TimeBudget = time.Duration(c.Optimizer.TimeBudgetSeconds * float64(time.Second))
	return out
}

// EngineSettings returns the orchestrator configuration.
func (c *Config) EngineSettings() orchestrator.Config {
	return orchestrator.Config{
		Workers:       c.Engine.Workers,
		BlockDuration: time.Duration(c.Engine.BlockMinutes) * time.Minute,
		HorizonBlocks: c.Engine.HorizonBlocks,
		Constraints: optimizer.Constraints{
			MaxConsecutiveBlocks: c.Engine.MaxConsecutiveBlocks,
			MinRestBlocks:        c.Engine.MinRestBlocks,
		},
		Seed:           c.Engine.Seed,
		ScheduleAbove:  models.Urgency(c.Engine.ScheduleAbove),
		TrendThreshold: c.Engine.TrendThreshold,
	}
}

// DriverSettings returns the cycle timing.
func (c *Config) DriverSettings() orchestrator.DriverConfig {
	return orchestrator.DriverConfig{
		Cadence:       seconds(c.Engine.CadenceSeconds),
		MinRetrigger:  seconds(c.Engine.MinRetriggerSeconds),
		ProbeInterval: seconds(c.Engine.ProbeIntervalSeconds),
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
