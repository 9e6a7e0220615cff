package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/ensemblestats/internal/ensemble"
	"github.com/lox/ensemblestats/internal/loader"
	"github.com/lox/ensemblestats/internal/logging"
	"github.com/lox/ensemblestats/internal/metrics"
	"github.com/lox/ensemblestats/internal/pipeline"
	"github.com/lox/ensemblestats/internal/store"
)

type Globals struct {
	LogLevel    string `help:"Log level (debug, info, warn, error)." default:"info" env:"ENSEMBLESTATS_LOG_LEVEL"`
	LogFormat   string `help:"Log format (text, json)." default:"text" env:"ENSEMBLESTATS_LOG_FORMAT"`
	LogFile     string `help:"Also write logs to this file, rotated by size." type:"path" env:"ENSEMBLESTATS_LOG_FILE"`
	MetricsFile string `help:"Write Prometheus metrics to this textfile on exit." type:"path" env:"ENSEMBLESTATS_METRICS_FILE"`

	logger *slog.Logger
}

// SourceFlags describes where one ensemble lives on disk.
type SourceFlags struct {
	Layout     string `help:"File layout: members (one pre-merged file per member) or daily (one .npy per member, date and parameter)." enum:"members,daily" default:"members"`
	Root       string `help:"Ensemble root directory." type:"path" required:""`
	Members    int    `help:"Number of members." required:""`
	Filename   string `help:"Member file name (members layout)." default:"y_pred.db"`
	Prefix     string `help:"File name prefix (daily layout)." default:"GC81"`
	DateLayout string `help:"Go time layout of the date in file names (daily layout)." default:"2006-01-02T15:04:05"`
}

func (f SourceFlags) loader(name string, log *slog.Logger) loader.Loader {
	if f.Layout == "daily" {
		return &loader.DailyFiles{Root: f.Root, Prefix: f.Prefix, DateLayout: f.DateLayout, Source: name, Logger: log}
	}
	return &loader.MemberFiles{Root: f.Root, Filename: f.Filename, Source: name, Logger: log}
}

// SampleFlags selects the samples and parameters to load.
type SampleFlags struct {
	Param    []string `help:"Parameters to load." default:"u10,v10" env:"ENSEMBLESTATS_PARAMS"`
	Date     []string `help:"Forecast dates (YYYYMMDDHH, ISO-8601, or a START/END/PT24H range); daily layout only." env:"ENSEMBLESTATS_DATES"`
	Echeance []int    `help:"Lead times in hours, in file layer order; daily layout only (default 12,27,42)." env:"ENSEMBLESTATS_ECHEANCES"`
}

func (f SampleFlags) request(name string, src SourceFlags, log *slog.Logger) (loader.Request, error) {
	dates, err := parseDates(f.Date)
	if err != nil {
		return loader.Request{}, err
	}
	req := loader.Request{Members: src.Members, Params: f.Param, Dates: dates, Echeances: f.Echeance}
	if src.Layout == "daily" {
		if len(req.Echeances) == 0 {
			req.Echeances = slices.Clone(loader.DefaultEcheances)
		}
		return req, nil
	}
	if len(f.Date) > 0 || len(f.Echeance) > 0 {
		log.Warn("--date and --echeance are ignored for the members layout; every sample in the member files is loaded",
			slog.String("source", name),
			slog.Int("dates", len(dates)),
			slog.Int("echeances", len(f.Echeance)))
	}
	return req, nil
}

type StatsCmd struct {
	Source SourceFlags `embed:""`
	SampleFlags
	Name   string        `help:"Name of the ensemble, used in logs and metrics." default:"ensemble"`
	Offset time.Duration `help:"Shift keys by this offset before computing (date += offset, echeance -= offset)." default:"0s"`
	Out    string        `help:"Results database." type:"path" default:"results.db"`
}

func (c *StatsCmd) Run(ctx context.Context, g *Globals) error {
	src, err := buildSource(c.Name, c.Source, c.SampleFlags, c.Offset, g.logger)
	if err != nil {
		return err
	}
	st, err := store.Open(c.Out)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := pipeline.New(st, g.logger).Stats(ctx, src)
	if err != nil {
		return err
	}
	g.logger.Info("statistics written",
		slog.String("out", c.Out),
		slog.Int("rows", res.Rows),
		slog.Int("days_loaded", res.DaysLoaded),
		slog.Int("days_skipped", res.DaysSkipped))
	return nil
}

type CompareCmd struct {
	DDPM  SourceFlags `embed:"" prefix:"ddpm-"`
	Arome SourceFlags `embed:"" prefix:"arome-"`
	SampleFlags
	Offset time.Duration `help:"Cycle offset applied to the arome ensemble keys." default:"6h" env:"ENSEMBLESTATS_OFFSET"`
	Out    string        `help:"Results database." type:"path" default:"results.db"`
}

func (c *CompareCmd) Run(ctx context.Context, g *Globals) error {
	ddpm, err := buildSource(ensemble.SourceDDPM, c.DDPM, c.SampleFlags, 0, g.logger)
	if err != nil {
		return err
	}
	arome, err := buildSource(ensemble.SourceArome, c.Arome, c.SampleFlags, c.Offset, g.logger)
	if err != nil {
		return err
	}
	st, err := store.Open(c.Out)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := pipeline.New(st, g.logger).Compare(ctx, ddpm, arome)
	if err != nil {
		return err
	}
	g.logger.Info("comparison written",
		slog.String("out", c.Out),
		slog.Int("rows", res.Rows),
		slog.Int("days_loaded", res.DaysLoaded),
		slog.Int("days_skipped", res.DaysSkipped))
	return nil
}

type KeysCmd struct {
	Source SourceFlags `embed:""`
	SampleFlags
	Offset time.Duration `help:"Shift keys by this offset before listing." default:"0s"`
}

func (c *KeysCmd) Run(ctx context.Context, g *Globals) error {
	src, err := buildSource("keys", c.Source, c.SampleFlags, c.Offset, g.logger)
	if err != nil {
		return err
	}
	keys, err := pipeline.Keys(ctx, src)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Printf("%s\t%d\t%s\n", k.Date.Format(time.RFC3339), k.Echeance, k.ValidTime().Format(time.RFC3339))
	}
	return nil
}

func buildSource(name string, f SourceFlags, s SampleFlags, offset time.Duration, log *slog.Logger) (pipeline.Source, error) {
	req, err := s.request(name, f, logging.OrDiscard(log))
	if err != nil {
		return pipeline.Source{}, err
	}
	src := pipeline.Source{Name: name, Loader: f.loader(name, log), Request: req}
	if offset != 0 {
		a, err := ensemble.NewAligner(offset)
		if err != nil {
			return pipeline.Source{}, err
		}
		src.Aligner = &a
	}
	return src, nil
}

type CLI struct {
	Globals

	Stats   StatsCmd   `cmd:"" help:"Compute pointwise mean, std, Q5 and Q95 for one ensemble."`
	Compare CompareCmd `cmd:"" help:"Align two ensembles, compute their statistics and store them side by side."`
	Keys    KeysCmd    `cmd:"" help:"List the (date, echeance) samples of an ensemble."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("ensemblestats"),
		kong.Description("Pointwise statistics and comparison of gridded ensemble forecasts."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	logger, closeLog, err := logging.New(logging.Options{Level: cli.LogLevel, Format: cli.LogFormat, File: cli.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ensemblestats: %v\n", err)
		os.Exit(2)
	}
	defer closeLog()
	cli.Globals.logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	kctx.BindTo(ctx, (*context.Context)(nil))

	runErr := kctx.Run(&cli.Globals)

	if cli.MetricsFile != "" {
		if err := metrics.WriteTextfile(cli.MetricsFile); err != nil {
			logger.Error("write metrics", slog.String("error", err.Error()))
		}
	}
	if runErr != nil {
		logger.Error("command failed", slog.String("command", kctx.Command()), slog.String("error", runErr.Error()))
		cancel()
		closeLog()
		os.Exit(1)
	}
}
