package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/andreassavva/relay/internal/config"
	"github.com/andreassavva/relay/internal/eventbus"
	"github.com/andreassavva/relay/internal/grpctp"
	"github.com/andreassavva/relay/internal/httptp"
	"github.com/andreassavva/relay/internal/logging"
	"github.com/andreassavva/relay/internal/network"
	"github.com/andreassavva/relay/internal/normalize"
	"github.com/andreassavva/relay/internal/operation"
	"github.com/andreassavva/relay/internal/otel"
)

const rootUsage = `relaynet — run GraphQL operations through the relay network layer

USAGE:
  relaynet <command> [flags]

COMMANDS:
  query            Execute one operation and print the normalized result
  watch            Stream results: poll a query or follow a subscription
  help             Show help for any command
`

const commonUsage = `  -config <file>                      YAML config file (env: RELAYNET_*)
  -transport <http|grpc>              Fetch transport (default: http)
  -endpoint <url|host:port>           GraphQL endpoint (required)
  -service <name>                     gRPC service name (default: relay.GraphQL)
  -query <text>                       Operation document
  -query-file <file>                  Read the operation document from a file
  -operation <name>                   Operation to run when the document has several
  -variables <json>                   Variables as a JSON object
  -header <Key: Value>                Request header. Repeatable (HTTP only)
  -timeout <duration>                 Per-fetch timeout, e.g. 10s (default: 30s)
  -missing-as-null                    Treat missing response fields as null
  -log.level <level>                  Log level (default: info)
  -log.format <json|console>          Log format (default: console)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: relaynet)
`

const queryUsage = `query FLAGS:
` + commonUsage + `  -force                              Bypass caches
  -upload <var=path>                  Attach a file to a variable. Repeatable (HTTP only)
`

const watchUsage = `watch FLAGS:
` + commonUsage + `  -poll <duration>                    Poll the query at this interval
  -count <n>                          Stop after n results (default: unlimited)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		log.Fatal().Err(err).Msg("relaynet")
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("relaynet", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "query":
		return cmdQuery(ctx, cmdArgs, stdout, stderr)
	case "watch":
		return cmdWatch(ctx, cmdArgs, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "query":
		fmt.Fprint(stdout, queryUsage)
	case "watch":
		fmt.Fprint(stdout, watchUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// commonFlags are shared by query and watch. Flags that were set on the
// command line override values loaded from the config file and environment.
type commonFlags struct {
	fs *flag.FlagSet

	configFile string
	transport  string
	endpoint   string
	service    string
	query      string
	queryFile  string
	operation  string
	variables  string
	headers    stringListFlag
	timeout    time.Duration
	missingNil bool
	logLevel   string
	logFormat  string
	otelAddr   string
	otelName   string
}

func newCommonFlags(name string) *commonFlags {
	c := &commonFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	fs := c.fs
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&c.configFile, "config", "", "YAML config file")
	fs.StringVar(&c.transport, "transport", "", "Fetch transport")
	fs.StringVar(&c.endpoint, "endpoint", "", "GraphQL endpoint")
	fs.StringVar(&c.service, "service", "", "gRPC service name")
	fs.StringVar(&c.query, "query", "", "Operation document")
	fs.StringVar(&c.queryFile, "query-file", "", "Operation document file")
	fs.StringVar(&c.operation, "operation", "", "Operation name")
	fs.StringVar(&c.variables, "variables", "", "Variables as JSON")
	fs.Var(&c.headers, "header", "Request header")
	fs.DurationVar(&c.timeout, "timeout", 0, "Per-fetch timeout")
	fs.BoolVar(&c.missingNil, "missing-as-null", false, "Treat missing fields as null")
	fs.StringVar(&c.logLevel, "log.level", "", "Log level")
	fs.StringVar(&c.logFormat, "log.format", "", "Log format")
	fs.StringVar(&c.otelAddr, "otel.endpoint", "", "OTLP collector endpoint")
	fs.StringVar(&c.otelName, "otel.service", "", "OpenTelemetry service name")
	return c
}

// resolve loads the configuration and applies the flags that were set.
func (c *commonFlags) resolve() (config.Config, error) {
	var opts []config.LoaderOption
	if c.configFile != "" {
		opts = append(opts, config.WithConfigFile(c.configFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return config.Config{}, err
	}

	var headerErr error
	c.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			cfg.Transport.Kind = c.transport
		case "endpoint":
			cfg.Transport.Endpoint = c.endpoint
		case "service":
			cfg.Transport.Service = c.service
		case "timeout":
			cfg.Transport.Timeout = c.timeout
		case "missing-as-null":
			cfg.Normalize.TreatMissingFieldsAsNull = c.missingNil
		case "log.level":
			cfg.Log.Level = c.logLevel
		case "log.format":
			cfg.Log.Format = c.logFormat
		case "otel.endpoint":
			cfg.Otel.Endpoint = c.otelAddr
		case "otel.service":
			cfg.Otel.Service = c.otelName
		case "header":
			if cfg.Transport.Headers == nil {
				cfg.Transport.Headers = map[string]string{}
			}
			for _, h := range c.headers {
				k, v, ok := strings.Cut(h, ":")
				if !ok {
					k, v, ok = strings.Cut(h, "=")
				}
				if !ok || strings.TrimSpace(k) == "" {
					headerErr = fmt.Errorf("invalid header %q", h)
					return
				}
				cfg.Transport.Headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
		}
	})
	if headerErr != nil {
		return config.Config{}, headerErr
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// parseOperation parses the document and variables given on the command line.
func (c *commonFlags) parseOperation(cfg operation.CacheConfig) (operation.Context, error) {
	text := c.query
	if c.queryFile != "" {
		b, err := os.ReadFile(c.queryFile)
		if err != nil {
			return operation.Context{}, fmt.Errorf("read query file: %w", err)
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return operation.Context{}, fmt.Errorf("-query or -query-file is required")
	}
	op, err := operation.Parse(text, c.operation)
	if err != nil {
		return operation.Context{}, err
	}
	var vars map[string]any
	if c.variables != "" {
		if err := json.Unmarshal([]byte(c.variables), &vars); err != nil {
			return operation.Context{}, fmt.Errorf("parse -variables: %w", err)
		}
	}
	return operation.New(op, vars, cfg), nil
}

// env is the runtime assembled from a resolved configuration.
type env struct {
	logger zerolog.Logger
	layer  *network.Layer
	close  func()
}

// setup builds the logger, telemetry, transport and network layer. Logs go
// to stderr unless the log output names a file, keeping stdout for results.
func setup(ctx context.Context, cfg config.Config, stderr io.Writer) (*env, error) {
	logCfg := cfg.Log
	logger := logging.NewWithWriter(logCfg, stderr)
	var closers []func()
	if out := strings.ToLower(logCfg.Output); out != "stderr" && out != "stdout" && out != "" {
		l, closer, err := logging.New(logCfg)
		if err != nil {
			return nil, err
		}
		logger = l
		closers = append(closers, func() { _ = closer.Close() })
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(ctx, cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return nil, fmt.Errorf("otel setup: %w", err)
	}
	closers = append(closers, func() { _ = shutdown(context.Background()) })

	opts := []network.Option{
		network.WithLogger(logger),
		network.WithNormalizeOptions(normalize.Options{
			TreatMissingFieldsAsNull: cfg.Normalize.TreatMissingFieldsAsNull,
		}),
	}
	var fetch network.FetchFunc
	switch cfg.Transport.Kind {
	case "grpc":
		service := cfg.Transport.Service
		if service == "" {
			service = grpctp.DefaultService
		}
		tp := grpctp.New(
			grpctp.WithProvider(grpctp.NewStaticEndpoints(map[string][]string{service: {cfg.Transport.Endpoint}})),
			grpctp.WithService(service),
			grpctp.WithTimeout(cfg.Transport.Timeout),
		)
		closers = append(closers, func() { _ = tp.Close() })
		fetch = tp.Fetch
		opts = append(opts, network.WithSubscribe(tp.Subscribe))
	default:
		hopts := []httptp.Option{
			httptp.WithEndpoint(cfg.Transport.Endpoint),
			httptp.WithTimeout(cfg.Transport.Timeout),
		}
		for k, v := range cfg.Transport.Headers {
			hopts = append(hopts, httptp.WithHeader(k, v))
		}
		tp := httptp.New(hopts...)
		closers = append(closers, func() { _ = tp.Close() })
		fetch = tp.Fetch
	}

	logger.Debug().
		Str("transport", cfg.Transport.Kind).
		Str("endpoint", cfg.Transport.Endpoint).
		Msg("relaynet: network layer ready")
	return &env{
		logger: logger,
		layer:  network.New(fetch, opts...),
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
			eventbus.Use(nil)
		},
	}, nil
}

func writeResult(w io.Writer, res *normalize.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func cmdQuery(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := newCommonFlags("query")
	force := false
	var uploads stringListFlag
	c.fs.BoolVar(&force, "force", force, "Bypass caches")
	c.fs.Var(&uploads, "upload", "Attach a file to a variable")
	if err := c.fs.Parse(args); err != nil {
		fmt.Fprint(stderr, queryUsage)
		return err
	}
	cfg, err := c.resolve()
	if err != nil {
		fmt.Fprint(stderr, queryUsage)
		return err
	}
	op, err := c.parseOperation(operation.CacheConfig{Force: force})
	if err != nil {
		return err
	}
	uploadables, closeUploads, err := openUploads(uploads)
	if err != nil {
		return err
	}
	defer closeUploads()

	e, err := setup(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer e.close()

	res, err := e.layer.Request(ctx, op, uploadables).Await(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", displayName(op), err)
	}
	return writeResult(stdout, res)
}

func openUploads(specs []string) (network.Uploadables, func(), error) {
	if len(specs) == 0 {
		return nil, func() {}, nil
	}
	out := network.Uploadables{}
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	for _, spec := range specs {
		name, path, ok := strings.Cut(spec, "=")
		if !ok || name == "" || path == "" {
			closeAll()
			return nil, nil, fmt.Errorf("invalid upload %q", spec)
		}
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open upload: %w", err)
		}
		files = append(files, f)
		out[name] = network.Uploadable{Filename: f.Name(), Body: f}
	}
	return out, closeAll, nil
}

func cmdWatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := newCommonFlags("watch")
	var poll time.Duration
	count := 0
	c.fs.DurationVar(&poll, "poll", 0, "Poll interval")
	c.fs.IntVar(&count, "count", count, "Stop after n results")
	if err := c.fs.Parse(args); err != nil {
		fmt.Fprint(stderr, watchUsage)
		return err
	}
	cfg, err := c.resolve()
	if err != nil {
		fmt.Fprint(stderr, watchUsage)
		return err
	}
	var cache operation.CacheConfig
	c.fs.Visit(func(f *flag.Flag) {
		if f.Name == "poll" {
			cache.Poll = operation.PollEvery(poll)
		}
	})
	op, err := c.parseOperation(cache)
	if err != nil {
		return err
	}

	e, err := setup(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer e.close()

	var (
		mu     sync.Mutex
		seen   int
		outErr error
		once   sync.Once
	)
	done := make(chan struct{})
	finish := func(err error) {
		once.Do(func() {
			mu.Lock()
			outErr = err
			mu.Unlock()
			close(done)
		})
	}
	d, err := e.layer.RequestStream(ctx, op, network.Observer[*normalize.Result]{
		Next: func(res *normalize.Result) {
			mu.Lock()
			seen++
			n := seen
			err := writeResult(stdout, res)
			mu.Unlock()
			if err != nil {
				finish(err)
				return
			}
			if count > 0 && n >= count {
				finish(nil)
			}
		},
		Error:     func(err error) { finish(fmt.Errorf("%s: %w", displayName(op), err)) },
		Completed: func() { finish(nil) },
	})
	if err != nil {
		return err
	}
	defer d.Dispose()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Info().Msg("relaynet: interrupted")
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	if errors.Is(outErr, context.Canceled) {
		return nil
	}
	return outErr
}

func displayName(op operation.Context) string {
	if op.Operation.Name != "" {
		return op.Operation.Name
	}
	return op.Operation.ID
}
