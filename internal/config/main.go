//nolint:mnd //no magic number
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xdoubleu/essentia/v2/pkg/config"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"github.com/xdoubleu/essentia/v2/pkg/validate"
	"github.com/xhit/go-str2duration/v2"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Env             string
	Port            int
	WebURL          string
	SentryDsn       string
	SampleRate      float64
	AccessExpiry    string
	RefreshExpiry   string
	DBDsn           string
	Release         string
	SupabaseUserID  string
	SupabaseProjRef string
	SupabaseAPIKey  string

	GoogleCredentialsFile string
	CalendarsFile         string
	WebhookURL            string
	WebhookToken          string
	FeedToken             string

	CoalescingWindow time.Duration
	HardCeiling      time.Duration
	LookBack         time.Duration
	LookAhead        time.Duration
	MappingTTL       time.Duration
	RenewalMargin    time.Duration
	ChannelTTL       time.Duration
	RenewalInterval  time.Duration
	PurgeInterval    time.Duration
	BackstopCron     string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryMultiplier  float64

	PlaceholderTitle  string
	PlaceholderColor  string
	IncludeFreeEvents bool
}

func New(logger *slog.Logger) Config {
	var cfg Config

	parser := config.New(logger)

	cfg.Env = parser.EnvStr("ENV", config.ProdEnv)
	cfg.Port = parser.EnvInt("PORT", 8000)
	cfg.WebURL = parser.EnvStr("WEB_URL", "http://localhost:8000")
	cfg.SentryDsn = parser.EnvStr("SENTRY_DSN", "")
	cfg.SampleRate = parser.EnvFloat("SAMPLE_RATE", 1.0)
	cfg.AccessExpiry = parser.EnvStr("ACCESS_EXPIRY", "1h")
	cfg.RefreshExpiry = parser.EnvStr("REFRESH_EXPIRY", "7d")
	cfg.DBDsn = parser.EnvStr("DB_DSN", "postgres://postgres@localhost/postgres")
	cfg.Release = parser.EnvStr("RELEASE", config.DevEnv)

	cfg.SupabaseUserID = parser.EnvStr("SUPABASE_USER_ID", "")
	cfg.SupabaseProjRef = parser.EnvStr("SUPABASE_PROJ_REF", "")
	cfg.SupabaseAPIKey = parser.EnvStr("SUPABASE_API_KEY", "")

	cfg.GoogleCredentialsFile = parser.EnvStr("GOOGLE_CREDENTIALS_FILE", "credentials.json")
	cfg.CalendarsFile = parser.EnvStr("CALENDARS_FILE", "calendars.yaml")
	cfg.WebhookURL = parser.EnvStr(
		"WEBHOOK_URL",
		"http://localhost:8000/shadowcal/notifications",
	)
	cfg.WebhookToken = parser.EnvStr("WEBHOOK_TOKEN", "")
	cfg.FeedToken = parser.EnvStr("FEED_TOKEN", "")

	envDuration := func(key string, defaultValue string) time.Duration {
		return parseDuration(logger, key, parser.EnvStr(key, defaultValue), defaultValue)
	}

	cfg.CoalescingWindow = envDuration("COALESCING_WINDOW", "5m")
	cfg.HardCeiling = envDuration("HARD_CEILING", "30m")
	cfg.LookBack = envDuration("LOOK_BACK", "7d")
	cfg.LookAhead = envDuration("LOOK_AHEAD", "90d")
	cfg.MappingTTL = envDuration("MAPPING_TTL", "130d")
	cfg.RenewalMargin = envDuration("RENEWAL_MARGIN", "1h")
	cfg.ChannelTTL = envDuration("CHANNEL_TTL", "7d")
	cfg.RenewalInterval = envDuration("RENEWAL_INTERVAL", "15m")
	cfg.PurgeInterval = envDuration("PURGE_INTERVAL", "24h")
	cfg.BackstopCron = parser.EnvStr("BACKSTOP_CRON", "*/30 * * * *")

	cfg.RetryMaxAttempts = parser.EnvInt("RETRY_MAX_ATTEMPTS", 5)
	cfg.RetryBaseDelay = envDuration("RETRY_BASE_DELAY", "1s")
	cfg.RetryMaxDelay = envDuration("RETRY_MAX_DELAY", "1m")
	cfg.RetryMultiplier = parser.EnvFloat("RETRY_MULTIPLIER", 2.0)

	cfg.PlaceholderTitle = parser.EnvStr("PLACEHOLDER_TITLE", "Busy")
	cfg.PlaceholderColor = parser.EnvStr("PLACEHOLDER_COLOR", "8")
	cfg.IncludeFreeEvents = parser.EnvBool("INCLUDE_FREE_EVENTS", true)

	return cfg
}

// Validate rejects settings the service must not run with. Production
// requires a webhook token.
func (cfg Config) Validate() error {
	v := validate.New()

	if cfg.Env == config.ProdEnv {
		validate.Check(v, "WEBHOOK_TOKEN", cfg.WebhookToken, validate.IsNotEmpty)
	}

	if v.Valid() {
		return nil
	}

	return fmt.Errorf("%w: %v", ErrInvalidConfig, v.Errors())
}

// parseDuration reads a human duration such as "90d" or "1h30m", falling
// back to the default when the value does not parse.
func parseDuration(
	logger *slog.Logger,
	key string,
	raw string,
	defaultValue string,
) time.Duration {
	value, err := str2duration.ParseDuration(raw)
	if err == nil {
		return value
	}

	logger.Warn(
		"invalid duration, using default",
		slog.String("key", key),
		slog.String("value", raw),
		logging.ErrAttr(err),
	)

	value, err = str2duration.ParseDuration(defaultValue)
	if err != nil {
		panic(err)
	}

	return value
}
