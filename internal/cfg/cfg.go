package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config holds herald's own settings. It sits next to the go-core package
// configs, which register their flags on the same FlagSet.
type Config struct {
	StatePath   string
	DatabaseURL string
	Lock        bool

	RulesPath    string
	PoolPath     string
	PoolTTLHours int

	SlackWebhookURL       string
	TelegramBotToken      string
	TelegramChatID        string
	TelegramRatePerSecond float64
	Console               bool

	APIPort               int
	APIToken              string
	DrainSeconds          int
	ShutdownBudgetSeconds int
	SlowQueryMillis       int

	DryRun bool
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.StatePath, "state-path", "state/seen.json", "seen-state JSON file (ignored when database-url is set)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the seen state (empty = state-path file)")
	fs.BoolVar(&c.Lock, "lock", true, "take an exclusive lease on the seen state for the duration of a run")
	fs.StringVar(&c.RulesPath, "rules-path", "", "YAML rule table layered over the embedded defaults (empty = defaults only)")
	fs.StringVar(&c.PoolPath, "pool-path", "state/pool", "directory of the item pool database used by items/publish")
	fs.IntVar(&c.PoolTTLHours, "pool-ttl-hours", 168, "hours a run's item pool is retained (1..8760)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack incoming webhook URL")
	fs.StringVar(&c.TelegramBotToken, "telegram-bot-token", "", "Telegram bot token")
	fs.StringVar(&c.TelegramChatID, "telegram-chat-id", "", "Telegram chat or channel ID")
	fs.Float64Var(&c.TelegramRatePerSecond, "telegram-rate-per-second", 1, "Telegram messages per second (0 = unlimited)")
	fs.BoolVar(&c.Console, "console", false, "also print every alert to stdout")
	fs.IntVar(&c.APIPort, "http-port", 8080, "override API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required by the override API")
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.SlowQueryMillis, "slow-query-ms", 250, "log database queries slower than this at warn level (0 = log every query)")
	fs.BoolVar(&c.DryRun, "dry-run", false, "evaluate and preview alerts without publishing or touching the seen state")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	if c.StatePath == "" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("one of STATE_PATH or DATABASE_URL is required"))
	}
	if c.PoolPath == "" {
		errs = append(errs, errors.New("POOL_PATH is required"))
	}
	if c.PoolTTLHours <= 0 || c.PoolTTLHours > 8760 {
		errs = append(errs, fmt.Errorf("invalid POOL_TTL_HOURS %d (must be 1..8760)", c.PoolTTLHours))
	}

	// Telegram needs both halves or neither
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}
	if c.TelegramRatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("invalid TELEGRAM_RATE_PER_SECOND %g (must be >= 0)", c.TelegramRatePerSecond))
	}

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.SlowQueryMillis < 0 {
		errs = append(errs, fmt.Errorf("invalid SLOW_QUERY_MS %d (must be >= 0)", c.SlowQueryMillis))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasPublisher reports whether any delivery target is configured.
func (c *Config) HasPublisher() bool {
	return c.SlackWebhookURL != "" || c.TelegramBotToken != "" || c.Console
}

// ValidateServe checks the settings only the serve command needs.
func (c *Config) ValidateServe() error {
	if c.APIToken == "" {
		return errors.New("API_TOKEN is required to serve the override API")
	}
	return nil
}
