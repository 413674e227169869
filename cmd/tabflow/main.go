// Command tabflow runs declarative tabular data pipelines, serves them over
// HTTP and enriches station files with reverse geocoding.
//
// Usage:
//
//	tabflow run -f pipeline.yaml
//	tabflow serve [-port 8080]
//	tabflow geocode -in stations.csv -out enriched.csv -lat Latitude -lon Longitude -echelons region,departement
//	tabflow version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"tabflow/internal/app"
	"tabflow/internal/config"
	"tabflow/internal/geocode"
	"tabflow/internal/infrastructure"
	"tabflow/internal/pipeline"
	"tabflow/internal/sink"
	"tabflow/internal/source"
	"tabflow/internal/transform"
	"tabflow/pkg/contracts"
)

var errUsage = errors.New("usage: tabflow <run|serve|geocode|version> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("tabflow failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "run":
		return runCommand(ctx, args[1:], stdout)
	case "serve":
		return serveCommand(ctx, args[1:])
	case "geocode":
		return geocodeCommand(ctx, args[1:], stdout)
	case "version":
		fmt.Fprintln(stdout, contracts.GetFullVersionString())
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

// environment is the ambient setup shared by every command
type environment struct {
	cfg       *config.Config
	logger    *slog.Logger
	paths     *config.Paths
	providers *infrastructure.OTelProviders
	metrics   *infrastructure.BusinessMetrics
}

func setup(configFile string) (*environment, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFrom(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	paths, err := cfg.GetPaths()
	if err != nil {
		return nil, err
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.NewOTelConfig(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	return &environment{cfg: cfg, logger: logger, paths: paths, providers: providers, metrics: metrics}, nil
}

func (e *environment) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.providers.Shutdown(ctx); err != nil {
		e.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
	}
}

func runCommand(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	file := fs.String("f", "", "pipeline definition file (.yaml, .yml or .json)")
	configFile := fs.String("config", "", "configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("run: -f is required")
	}

	def, err := pipeline.LoadDefinition(*file)
	if err != nil {
		return err
	}

	env, err := setup(*configFile)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.paths.EnsureDirectories(); err != nil {
		return err
	}

	manager := pipeline.NewManager(pipeline.NewRegistry(env.paths),
		pipeline.WithManagerLogger(env.logger),
		pipeline.WithManagerTracer(pipeline.NewTracer(env.metrics)))

	state, err := manager.Execute(ctx, def)
	if state != nil {
		printRun(stdout, state)
	}
	return err
}

func printRun(w io.Writer, state *pipeline.RunState) {
	fmt.Fprintf(w, "run %s (%s): %s in %s\n", state.ID, state.Pipeline, state.Status,
		state.Duration().Round(time.Millisecond))
	for _, s := range state.Stages {
		line := fmt.Sprintf("  %d %-18s %-10s %6d -> %-6d", s.Index, s.Name, s.Status, s.RowsIn, s.RowsOut)
		if s.Error != "" {
			line += " " + s.Error
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func serveCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configFile := fs.String("config", "", "configuration file")
	port := fs.Int("port", 0, "HTTP port (overrides configuration)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := setup(*configFile)
	if err != nil {
		return err
	}
	if *port > 0 {
		env.cfg.Server.Port = *port
	}

	application, err := app.New(env.cfg, env.logger, env.providers)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(ctx)
}

func geocodeCommand(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("geocode", flag.ContinueOnError)
	in := fs.String("in", "", "station file (resolved against the data directory)")
	out := fs.String("out", "", "enriched file (resolved against the output directory)")
	lat := fs.String("lat", "Latitude", "latitude column")
	lon := fs.String("lon", "Longitude", "longitude column")
	echelons := fs.String("echelons", "Region,Departement", "comma-separated echelons: region, departement, pays")
	inSep := fs.String("in-sep", ";", "input separator")
	outSep := fs.String("out-sep", ",", "output separator")
	configFile := fs.String("config", "", "configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("geocode: -in and -out are required")
	}
	if len([]rune(*inSep)) != 1 || len([]rune(*outSep)) != 1 {
		return errors.New("geocode: separators must be a single character")
	}

	env, err := setup(*configFile)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.paths.EnsureDirectories(); err != nil {
		return err
	}

	resolver, err := geocode.NewNominatimResolver(env.cfg.Geocoder, geocode.WithMetrics(env.metrics))
	if err != nil {
		return err
	}
	enricher, err := geocode.NewEnricher(resolver, *lat, *lon, strings.Split(*echelons, ","))
	if err != nil {
		return err
	}

	p, err := pipeline.New("geocode",
		source.NewCSV(env.paths, *in, []rune(*inSep)[0]),
		[]transform.Transformer{enricher},
		sink.NewCSV(env.paths, *out, []rune(*outSep)[0], false),
		pipeline.WithLogger(env.logger),
		pipeline.WithTracer(pipeline.NewTracer(env.metrics)))
	if err != nil {
		return err
	}

	state, err := p.Execute(ctx, uuid.New().String())
	if state != nil {
		printRun(stdout, state)
	}
	return err
}
