package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/r3labs/diff/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/alanbriolat/video-relay"
	"github.com/alanbriolat/video-relay/async"
	"github.com/alanbriolat/video-relay/convert"
	"github.com/alanbriolat/video-relay/deliver"
	"github.com/alanbriolat/video-relay/internal/history"
	"github.com/alanbriolat/video-relay/pipeline"
	_ "github.com/alanbriolat/video-relay/providers"
)

func main() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = video_relay.WithLogger(ctx, logger)

	app := &cli.App{
		Name:  "video-relay",
		Usage: "fetch media, shrink it to fit, and deliver it",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
				EnvVars: []string{"VIDEO_RELAY_CONFIG"},
			},
			&cli.PathFlag{
				Name:  "history",
				Usage: "record outcomes in `FILE` (overrides historyPath)",
			},
		},
		Commands: []*cli.Command{
			relayCommand(ctx),
			historyCommand(),
			providersCommand(),
			configCommand(),
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.Run(os.Args) })

	select {
	case err = <-result:
	case <-ctx.Done():
		stop()
		err = <-result
	}
	if err != nil {
		logger.Fatal(err.Error())
	}
}

// loadConfig reads the --config file if given, applying global flag overrides.
func loadConfig(c *cli.Context) (video_relay.Config, error) {
	cfg := video_relay.DefaultConfig()
	if path := c.Path("config"); path != "" {
		var err error
		if cfg, err = video_relay.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if path := c.Path("history"); path != "" {
		cfg.HistoryPath = path
	}
	return cfg, nil
}

func relayCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:      "relay",
		Usage:     "fetch each locator and deliver it (or save it locally)",
		ArgsUsage: "LOCATOR...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "audio",
				Usage: "fetch audio only",
			},
			&cli.BoolFlag{
				Name:  "local",
				Usage: "save to the save directory instead of delivering",
			},
			&cli.StringFlag{
				Name:  "channel",
				Value: "telegram",
				Usage: "remote channel: telegram or s3",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "only try the named provider (see the providers command)",
			},
			&cli.PathFlag{
				Name:  "save-dir",
				Usage: "save local files to `DIR` (overrides saveDir)",
			},
			&cli.PathFlag{
				Name:  "work-dir",
				Usage: "keep temporary files in `DIR` (overrides workDir)",
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "telegram bot token",
				EnvVars: []string{"BOT_TOKEN"},
			},
			&cli.Int64Flag{
				Name:    "chat-id",
				Usage:   "telegram chat to deliver to",
				EnvVars: []string{"MY_CHAT_ID"},
			},
			&cli.BoolFlag{
				Name:  "parallel",
				Usage: "process all locators at once (no progress bars)",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "don't record outcomes",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("at least one LOCATOR is required", 2)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if dir := c.Path("save-dir"); dir != "" {
				cfg.SaveDir = dir
			}
			if dir := c.Path("work-dir"); dir != "" {
				cfg.WorkDir = dir
			}
			if token := c.String("token"); token != "" {
				cfg.Telegram.Token = token
			}
			if chatID := c.Int64("chat-id"); chatID != 0 {
				cfg.Telegram.ChatID = chatID
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			kind := pipeline.Video
			if c.Bool("audio") {
				kind = pipeline.Audio
			}
			destination := pipeline.Remote
			if c.Bool("local") {
				destination = pipeline.Local
			}

			p, err := buildPipeline(cfg, destination, c.String("channel"), c.String("provider"))
			if err != nil {
				return err
			}

			var store history.Store
			if !c.Bool("no-history") {
				if store, err = openHistory(cfg.HistoryPath); err != nil {
					return err
				}
				defer store.Close()
			}

			r := &relay{pipeline: p, store: store, log: zap.S().Named("relay")}
			requests := make([]pipeline.Request, 0, c.NArg())
			for _, locator := range c.Args().Slice() {
				requests = append(requests, pipeline.NewRequest(locator, kind, destination))
			}
			var failed int
			if c.Bool("parallel") {
				failed = r.runParallel(ctx, requests)
			} else {
				failed = r.runSequential(ctx, requests)
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d requests failed", failed, len(requests)), 1)
			}
			return nil
		},
	}
}

func buildPipeline(cfg video_relay.Config, destination pipeline.Destination, channel, provider string) (*pipeline.Pipeline, error) {
	tmpl, err := cfg.FileTemplate()
	if err != nil {
		return nil, err
	}
	fetcher := video_relay.NewFetcher(&video_relay.DefaultProviderRegistry)
	fetcher.FileTemplate = tmpl
	fetcher.Provider = provider

	converter, err := convert.New(cfg.ConvertConfig())
	if err != nil {
		return nil, err
	}

	var deliverer pipeline.Deliverer
	if destination == pipeline.Remote {
		switch channel {
		case "telegram":
			if deliverer, err = deliver.NewTelegram(cfg.Telegram); err != nil {
				return nil, err
			}
		case "s3":
			if deliverer, err = deliver.NewS3(cfg.S3); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown channel %q", channel)
		}
	}

	return pipeline.New(cfg.PipelineConfig(), fetcher, converter, deliverer,
		pipeline.WithLogger(zap.S().Named("pipeline")))
}

func openHistory(path string) (history.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0775); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return history.Open(path)
}

type relay struct {
	pipeline *pipeline.Pipeline
	store    history.Store
	log      *zap.SugaredLogger
}

func (r *relay) runSequential(ctx context.Context, requests []pipeline.Request) (failed int) {
	status := statusLogger{log: r.log}
	for i, req := range requests {
		if ctx.Err() != nil {
			r.log.Warnw("interrupted, skipping remaining requests", "remaining", len(requests)-i)
			return failed + len(requests) - i
		}
		bars := newProgressBars(os.Stderr)
		if !r.run(ctx, req, status, bars) {
			failed++
		}
		bars.Finish()
	}
	return failed
}

// runParallel runs every request as an independent invocation on its own goroutine.
func (r *relay) runParallel(ctx context.Context, requests []pipeline.Request) (failed int) {
	status := statusLogger{log: r.log}
	results := make([]<-chan bool, 0, len(requests))
	for _, req := range requests {
		req := req
		results = append(results, async.Run(func() bool {
			return r.run(ctx, req, status, nil)
		}))
	}
	for _, result := range results {
		if !<-result {
			failed++
		}
	}
	return failed
}

func (r *relay) run(ctx context.Context, req pipeline.Request, status pipeline.StatusSink, progress pipeline.ProgressSink) bool {
	r.log.Infow("processing", "request_id", req.ID, "locator", req.Locator, "kind", req.Kind, "destination", req.Destination)
	started := time.Now()
	outcome := r.pipeline.Run(ctx, req, status, progress)
	r.record(req, outcome, started)
	return outcome.IsSuccess()
}

func (r *relay) record(req pipeline.Request, outcome pipeline.Outcome, started time.Time) {
	if r.store == nil {
		return
	}
	record := history.NewRecord(req, outcome, started, time.Now())
	if outcome.Kind == pipeline.SavedLocally {
		if digest, err := history.Digest(outcome.Artifact.Path); err != nil {
			r.log.Warnw("failed to digest saved file", "path", outcome.Artifact.Path, "error", err)
		} else {
			record.Digest = digest
		}
	}
	if err := r.store.Put(record); err != nil {
		r.log.Errorw("failed to record outcome", "request_id", req.ID, "error", err)
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list recorded outcomes",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath)
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := store.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tOUTCOME\tKIND\tATTEMPTS\tLOCATOR\tDETAIL")
			for _, rec := range records {
				detail := rec.Path
				if rec.Outcome == pipeline.Failed.String() {
					detail = rec.Reason + ": " + rec.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					rec.Started.Format(time.RFC3339), rec.Outcome, rec.Kind, rec.Attempts, rec.Locator, detail)
			}
			return w.Flush()
		},
	}
}

func providersCommand() *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "list providers in the order locators are matched against them",
		Action: func(c *cli.Context) error {
			for _, name := range video_relay.DefaultProviderRegistry.List() {
				fmt.Fprintln(c.App.Writer, name)
			}
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the effective configuration",
		Action: func(c *cli.Context) error {
			logger := zap.S().Named("config")
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			changes, err := diff.Diff(video_relay.DefaultConfig(), cfg)
			if err != nil {
				logger.Errorf("failed to diff config against defaults: %v", err)
			} else {
				for _, change := range changes {
					logger.Infof("%v: %#v -> %#v", change.Path, change.From, change.To)
				}
			}
			encoder := yaml.NewEncoder(c.App.Writer)
			defer encoder.Close()
			return encoder.Encode(&cfg)
		},
	}
}
