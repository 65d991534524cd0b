package opap

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coachpo/kino/internal/infra/telemetry"
)

const (
	// DefaultBaseURL is the public OPAP draw service.
	DefaultBaseURL = "https://api.opap.gr"
	// GameID identifies KINO on the draw service.
	GameID = 1100

	defaultHTTPTimeout       = 10 * time.Second
	defaultRequestsPerSecond = 5.0
	defaultBurst             = 2
	defaultMaxRetries        = 4
	defaultMaxElapsed        = 30 * time.Second
	defaultInitialInterval   = 250 * time.Millisecond
	maxErrorBody             = 4 << 10
)

// Options configures a Client. Zero fields take defaults.
type Options struct {
	BaseURL           string
	HTTPClient        *http.Client
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// MaxRetries bounds retries after the first attempt for retryable failures.
	MaxRetries      int
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	Logger          logrus.FieldLogger
	Metrics         *telemetry.Metrics
}

func (o Options) baseURL() string {
	base := strings.TrimSpace(o.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/")
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (o Options) requestsPerSecond() float64 {
	if o.RequestsPerSecond > 0 {
		return o.RequestsPerSecond
	}
	return defaultRequestsPerSecond
}

func (o Options) burst() int {
	if o.Burst > 0 {
		return o.Burst
	}
	return defaultBurst
}

func (o Options) maxTries() uint {
	if o.MaxRetries < 0 {
		return 1
	}
	if o.MaxRetries == 0 {
		return defaultMaxRetries + 1
	}
	return uint(o.MaxRetries) + 1
}

func (o Options) maxElapsed() time.Duration {
	if o.MaxElapsed > 0 {
		return o.MaxElapsed
	}
	return defaultMaxElapsed
}

func (o Options) initialInterval() time.Duration {
	if o.InitialInterval > 0 {
		return o.InitialInterval
	}
	return defaultInitialInterval
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}
