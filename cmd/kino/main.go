// Command kino backtests a KINO selection against historical draws and prints
// the mean payout multiplier as a JSON report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata" // draw dates follow Europe/Athens

	"github.com/sirupsen/logrus"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/app/analysis"
	"github.com/coachpo/kino/internal/infra/config"
	"github.com/coachpo/kino/internal/infra/logging"
	"github.com/coachpo/kino/internal/infra/telemetry"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2

	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	ctx, cancel := newSignalContext()
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

type options struct {
	numbers      []int
	bonus        bool
	date         string
	pages        pageList
	cacheDir     string
	cacheBackend string
	configPath   string
	debug        bool
	serve        bool
	addr         string
}

// pageList accepts repeated flags and comma separated values.
type pageList []int

func (p *pageList) String() string {
	parts := make([]string, len(*p))
	for i, v := range *p {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (p *pageList) Set(raw string) error {
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid page %q", part)
		}
		*p = append(*p, n)
	}
	return nil
}

// multiValueFlags take every following bare token as another value, so
// "-p 1 2 3" reads as three pages.
var multiValueFlags = map[string]bool{"-p": true, "--p": true, "-page": true, "--page": true}

func expandMultiValue(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		out = append(out, arg)
		if !multiValueFlags[arg] || i+1 >= len(args) {
			continue
		}
		i++
		out = append(out, args[i])
		for i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			out = append(out, arg, args[i])
		}
	}
	return out
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("kino", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: kino [flags] NUMBER [NUMBER ...]")
		fmt.Fprintln(fs.Output(), "       kino -serve [-addr ADDR] [flags]")
		fs.PrintDefaults()
	}
	fs.BoolVar(&opts.bonus, "b", false, "Play with KINO bonus")
	fs.BoolVar(&opts.bonus, "bonus", false, "Play with KINO bonus")
	fs.StringVar(&opts.date, "d", "", "Draw date in YYYY-MM-DD format (default: today in Athens)")
	fs.StringVar(&opts.date, "date", "", "Draw date in YYYY-MM-DD format (default: today in Athens)")
	fs.Var(&opts.pages, "p", "Fetch only the given page(s) of draws, 1-18")
	fs.Var(&opts.pages, "page", "Fetch only the given page(s) of draws, 1-18")
	fs.StringVar(&opts.cacheDir, "c", "", "Cache fetched draws under this directory")
	fs.StringVar(&opts.cacheDir, "cache", "", "Cache fetched draws under this directory")
	fs.StringVar(&opts.cacheBackend, "cache-backend", "", "Cache backend: none, file, postgres, memory")
	fs.StringVar(&opts.configPath, "config", "", "Path to YAML configuration file")
	fs.BoolVar(&opts.debug, "debug", false, "Log each draw for debugging")
	fs.BoolVar(&opts.serve, "serve", false, "Serve the HTTP API instead of running one backtest")
	fs.StringVar(&opts.addr, "addr", "", "HTTP API listen address (default from config, :8080)")

	// flag stops at the first positional; keep parsing so flags may follow numbers.
	remaining := expandMultiValue(args)
	var positional []string
	for {
		if err := fs.Parse(remaining); err != nil {
			return options{}, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		remaining = rest[1:]
	}

	if len(positional) == 0 && !opts.serve {
		fs.Usage()
		return options{}, errors.New("at least one number is required")
	}
	for _, raw := range positional {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return options{}, fmt.Errorf("invalid number %q", raw)
		}
		opts.numbers = append(opts.numbers, n)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	cfg, err := config.Load(ctx, opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return exitUsage
	}
	if opts.cacheDir != "" {
		cfg.Cache.Directory = opts.cacheDir
		if opts.cacheBackend == "" && cfg.Cache.Backend == config.CacheNone {
			cfg.Cache.Backend = config.CacheFile
		}
	}
	if opts.cacheBackend != "" {
		cfg.Cache.Backend = config.ParseCacheBackend(opts.cacheBackend)
	}
	if opts.addr != "" {
		cfg.APIServer.Addr = opts.addr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitUsage
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: string(cfg.Log.Format),
		Debug:  opts.debug,
		Output: stderr,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:         cfg.Telemetry.EnableMetrics,
		OTLPEndpoint:    cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:    cfg.Telemetry.OTLPInsecure,
		MetricInterval:  cfg.Telemetry.MetricInterval,
		ShutdownTimeout: telemetryShutdownTimeout,
		ServiceName:     cfg.Telemetry.ServiceName,
		Environment:     string(cfg.Environment),
	})
	if err != nil {
		logger.WithError(err).Error("initialise telemetry")
		return exitFailure
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("telemetry shutdown")
		}
	}()
	meter := provider.Meter("github.com/coachpo/kino")
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		logger.WithError(err).Warn("metrics unavailable")
		metrics = nil
	}

	svc, cleanup, err := analysis.Build(ctx, cfg, analysis.Deps{Logger: logger, Metrics: metrics, Meter: meter})
	defer cleanup()
	if err != nil {
		return report(stderr, logger, err)
	}

	if opts.serve {
		listener, err := net.Listen("tcp", cfg.APIServer.Addr)
		if err != nil {
			return report(stderr, logger, err)
		}
		if err := serveAPI(ctx, cfg, svc, logger, listener); err != nil {
			return report(stderr, logger, err)
		}
		return exitOK
	}

	result, err := svc.Run(ctx, analysis.Request{
		Numbers: opts.numbers,
		Bonus:   opts.bonus,
		Date:    opts.date,
		Pages:   opts.pages,
	})
	if err != nil {
		return report(stderr, logger, err)
	}
	out, err := result.JSON()
	if err != nil {
		return report(stderr, logger, err)
	}
	if _, err := stdout.Write(out); err != nil {
		return report(stderr, logger, err)
	}
	return exitOK
}

func report(stderr io.Writer, logger logrus.FieldLogger, err error) int {
	logger.WithField("code", string(errs.CodeOf(err))).Debug("run failed")
	fmt.Fprintf(stderr, "kino: %v\n", err)
	if errs.HasCode(err, errs.CodeInvalid) {
		return exitUsage
	}
	return exitFailure
}
