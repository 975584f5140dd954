// Package container wires the service with samber/do. Each *Package function registers the
// providers of one concern; commands pick the packages they need.
package container

import (
	"fmt"

	"github.com/samber/do"
	"github.com/serroba/link-tracker/internal/metrics"
	"go.uber.org/zap"
)

// Database drivers.
const (
	DatabaseMemory   = "memory"
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
)

// Click log modes.
const (
	ClickLogSQL  = "sql"
	ClickLogNone = "none"
)

// LogFormat selects the zap encoder.
type LogFormat string

const (
	LogFormatJSON    LogFormat = "json"
	LogFormatConsole LogFormat = "console"
)

// Options is the service configuration. humacli reads it from flags and SERVICE_* variables.
type Options struct {
	Port            int    `default:"8888"                  help:"Port to listen on"                                        short:"p"`
	BaseURL         string `default:""                      help:"Public base URL of short links, http://localhost:PORT when empty"`
	LinkPrefix      string `default:"go"                    help:"Path prefix of short links"`
	CodeLength      int    `default:"6"                     help:"Length of generated short codes"                          short:"c"`
	Database        string `default:"memory"                help:"Storage driver"`
	DatabaseURL     string `default:"file:linktracker.db"   help:"SQLite file or libsql:// URL, or PostgreSQL connection string"`
	ClickLog        string `default:"sql"                   help:"Keep a per-click log (sql) or only per-link counters (none)"`
	RedisAddr       string `default:""                      help:"Redis address for the link cache, rate limits and click stream" short:"r"`
	CacheTTLSeconds int    `default:"300"                   help:"Short code cache TTL in seconds, 0 disables the cache"`
	ReportSecret    string `default:""                      help:"Secret that signs report tokens"`
	AsyncTracking   bool   `default:"false"                 help:"Record clicks from the click stream instead of inside the redirect"`
	LogFormat       string `default:"console"               help:"Log encoding"`
	DateFormat      string `default:"January 2, 2006"       help:"Go layout of dates in embedded stats"`
}

// PublicBaseURL returns BaseURL or the local address when it is not configured.
func (o *Options) PublicBaseURL() string {
	if o.BaseURL != "" {
		return o.BaseURL
	}

	return fmt.Sprintf("http://localhost:%d", o.Port)
}

// LoggerPackage provides the *zap.Logger.
func LoggerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if LogFormat(opts.LogFormat) == LogFormatJSON {
			return zap.NewProduction()
		}

		return zap.NewDevelopment()
	})
}

// MetricsPackage provides the Prometheus collectors.
func MetricsPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*metrics.Metrics, error) {
		return metrics.New(), nil
	})
}
