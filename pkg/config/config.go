package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/report-generator/pkg/model"
)

// Version is set at build time
var Version = "dev"

// Config holds the immutable startup parameters of the service
type Config struct {
	Auth      Auth
	HTTP      HTTP
	Common    Common
	SMTP      SMTP
	Chrome    Chrome
	Retention Retention
}

// Auth is the service account used to log into the web application
type Auth struct {
	UserEmail    string
	UserPassword string
}

// HTTP holds listener configuration
type HTTP struct {
	Addr        string
	Port        int
	IPv6Enabled bool
}

// Common holds application wide settings
type Common struct {
	AppName       string
	WebURL        string
	SubjectPrefix string
}

// SMTP holds mail transport configuration
type SMTP struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ReplyTo        string
	FromEmail      string
	Encryption     string // "starttls", "ssltls" or empty
	AllowedDomains []string
}

// Chrome holds browser launch and navigation configuration
type Chrome struct {
	Backend            string // "chromium" or "playwright"
	Path               string
	CheckDefaultPath   bool
	DownloadPath       string
	NoSandbox          bool
	WithHead           bool
	SleepSecs          int // data-ready poll budget
	WindowWidth        int
	WindowHeight       int
	AdditionalArgs     []string
	DisableDefaultArgs bool
	ElementTimeoutSecs int
	SaveScreenshots    bool
}

// Retention holds run history configuration
type Retention struct {
	DBPath string
	Days   int
	Cron   string
}

// Load reads configuration from .env and the process environment
func Load(logger logrus.FieldLogger) (*Config, error) {
	LoadEnv(logger)

	cfg := &Config{
		Auth: Auth{
			UserEmail:    GetEnv("ZO_REPORT_USER_EMAIL", ""),
			UserPassword: GetEnv("ZO_REPORT_USER_PASSWORD", ""),
		},
		HTTP: HTTP{
			Addr:        GetEnv("ZO_HTTP_ADDR", "127.0.0.1"),
			Port:        GetEnvInt("ZO_HTTP_PORT", 5090),
			IPv6Enabled: GetEnvBool("ZO_HTTP_IPV6_ENABLED", false),
		},
		Common: Common{
			AppName:       GetEnv("ZO_APP_NAME", "report_generator"),
			WebURL:        GetEnv("ZO_WEB_URL", "http://localhost:5080/web"),
			SubjectPrefix: GetEnv("ZO_REPORT_SUBJECT_PREFIX", "Openobserve Report"),
		},
		SMTP: SMTP{
			Host:           GetEnv("ZO_SMTP_HOST", "localhost"),
			Port:           GetEnvInt("ZO_SMTP_PORT", 25),
			Username:       GetEnv("ZO_SMTP_USER_NAME", ""),
			Password:       GetEnv("ZO_SMTP_PASSWORD", ""),
			ReplyTo:        GetEnv("ZO_SMTP_REPLY_TO", ""),
			FromEmail:      GetEnv("ZO_SMTP_FROM_EMAIL", ""),
			Encryption:     GetEnv("ZO_SMTP_ENCRYPTION", ""),
			AllowedDomains: GetEnvList("ZO_SMTP_ALLOWED_DOMAINS"),
		},
		Chrome: Chrome{
			Backend:            GetEnv("ZO_CHROME_BACKEND", "chromium"),
			Path:               GetEnv("ZO_CHROME_PATH", ""),
			CheckDefaultPath:   GetEnvBool("ZO_CHROME_CHECK_DEFAULT_PATH", true),
			DownloadPath:       GetEnv("ZO_CHROME_DOWNLOAD_PATH", "./data/download"),
			NoSandbox:          GetEnvBool("ZO_CHROME_NO_SANDBOX", false),
			WithHead:           GetEnvBool("ZO_CHROME_WITH_HEAD", false),
			SleepSecs:          GetEnvInt("ZO_CHROME_SLEEP_SECS", 20),
			WindowWidth:        GetEnvInt("ZO_CHROME_WINDOW_WIDTH", 1370),
			WindowHeight:       GetEnvInt("ZO_CHROME_WINDOW_HEIGHT", 730),
			AdditionalArgs:     GetEnvList("ZO_CHROME_ADDITIONAL_ARGS"),
			DisableDefaultArgs: GetEnvBool("ZO_CHROME_DISABLE_DEFAULT_ARGS", false),
			ElementTimeoutSecs: GetEnvInt("ZO_CHROME_ELEMENT_TIMEOUT_SECS", 30),
			SaveScreenshots:    GetEnvBool("ZO_CHROME_SAVE_SCREENSHOTS", false),
		},
		Retention: Retention{
			DBPath: GetEnv("ZO_REPORT_DB_PATH", "./data/report-generator.db"),
			Days:   GetEnvInt("ZO_RETENTION_DAYS", 30),
			Cron:   GetEnv("ZO_RETENTION_CRON", "0 * * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	switch c.Chrome.Backend {
	case "chromium", "playwright":
	default:
		return fmt.Errorf("unknown ZO_CHROME_BACKEND %q", c.Chrome.Backend)
	}
	switch c.SMTP.Encryption {
	case "", "starttls", "ssltls":
	default:
		return fmt.Errorf("unknown ZO_SMTP_ENCRYPTION %q", c.SMTP.Encryption)
	}
	if c.Chrome.WindowWidth <= 0 || c.Chrome.WindowHeight <= 0 {
		return fmt.Errorf("chrome window size must be positive, got %dx%d", c.Chrome.WindowWidth, c.Chrome.WindowHeight)
	}
	if c.Retention.Days > 0 {
		if err := model.ValidateCronExpression(c.Retention.Cron); err != nil {
			return fmt.Errorf("ZO_RETENTION_CRON: %w", err)
		}
	}
	return nil
}

// ListenAddr returns the address the HTTP server binds to
func (c *Config) ListenAddr() string {
	if c.HTTP.IPv6Enabled {
		return net.JoinHostPort("::", strconv.Itoa(c.HTTP.Port))
	}
	addr := c.HTTP.Addr
	if addr == "" {
		addr = "0.0.0.0"
	}
	return net.JoinHostPort(addr, strconv.Itoa(c.HTTP.Port))
}

// DefaultDimensions is the capture size used when a dashboard has none
func (c *Config) DefaultDimensions() model.Dimensions {
	return model.Dimensions{Width: c.Chrome.WindowWidth, Height: c.Chrome.WindowHeight}
}

// DataLoadTimeout is how long to poll for the data-ready marker
func (c *Config) DataLoadTimeout() time.Duration {
	return time.Duration(c.Chrome.SleepSecs) * time.Second
}

// ElementTimeout bounds a single element lookup
func (c *Config) ElementTimeout() time.Duration {
	return time.Duration(c.Chrome.ElementTimeoutSecs) * time.Second
}

// RetentionPeriod is how long runs and diagnostic screenshots are kept
func (c *Config) RetentionPeriod() time.Duration {
	return time.Duration(c.Retention.Days) * 24 * time.Hour
}
