package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/duganchen/feedpreview/internal/cache"
	"github.com/duganchen/feedpreview/internal/config"
	"github.com/duganchen/feedpreview/internal/feed"
	"github.com/duganchen/feedpreview/internal/logging"
	"github.com/duganchen/feedpreview/internal/preview"
	"github.com/duganchen/feedpreview/internal/web"
)

const usage = `Usage:
  feedpreview serve [--config FILE] [--addr ADDR] [--log-level LEVEL]
  feedpreview get URL [--size N] [--item-tag TAG] [--output json|yaml] [--config FILE]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "feedpreview:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:], stderr)
	case "get":
		return get(ctx, args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// app holds the pieces shared by both commands.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   cache.Store[feed.Items]
	sweeper cache.Sweeper
	service *preview.Service
	close   func()
}

func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	log := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)

	var opts []cache.Option
	if cfg.Cache.MaxEntries > 0 {
		opts = append(opts, cache.WithMaxEntries(cfg.Cache.MaxEntries))
	}

	a := &app{cfg: cfg, log: log, close: func() {}}
	switch cfg.Cache.Backend {
	case config.BackendSQLite:
		s, err := cache.NewSQLite[feed.Items](cfg.Cache.SQLiteDSN, cfg.Cache.TTL, log, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed init sqlite cache: %w", err)
		}
		a.store, a.sweeper = s, s
		a.close = func() {
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Msg("closing sqlite cache")
			}
		}
	default:
		s := cache.NewTTL[feed.Items](cfg.Cache.TTL, opts...)
		a.store, a.sweeper = s, s
	}

	fetcher := feed.NewClient(log,
		feed.WithTimeout(cfg.Fetch.Timeout),
		feed.WithUserAgent(cfg.Fetch.UserAgent),
		feed.WithMaxBodyBytes(cfg.Fetch.MaxBodyBytes),
	)
	a.service = preview.NewService(a.store, fetcher,
		preview.WithDedupe(cfg.Preview.Dedupe),
		preview.WithLogger(log),
	)

	log.Debug().
		Str("backend", cfg.Cache.Backend).
		Dur("ttl", cfg.Cache.TTL).
		Bool("dedupe", cfg.Preview.Dedupe).
		Msg("preview service ready")
	return a, nil
}

func serve(ctx context.Context, args []string, stderr io.Writer) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	fs.String("addr", "", "listen address, e.g. :8000")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.Duration("cache-ttl", 0, "cache time-to-live, e.g. 5m")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, changedFlags(fs))
	if err != nil {
		return err
	}

	a, err := newApp(cfg, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	tmpl, err := web.NewTemplates()
	if err != nil {
		return err
	}
	handler := web.NewHandler(a.service, tmpl, a.log)
	server := web.NewServer(cfg.Server, web.NewRouter(handler, a.log), a.log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		cache.RunSweeper(ctx, a.sweeper, cfg.Cache.SweepInterval)
		return nil
	})
	if *configPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, *configPath, a.log, func(next *config.Config) {
				lvl := logging.SetLevel(next.Log.Level)
				a.log.Info().Str("level", lvl.String()).Msg("log level updated")
			})
		})
	}
	return g.Wait()
}

func get(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("get", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	size := fs.IntP("size", "n", preview.DefaultSize, "number of items (1, 5, 10 or 20)")
	itemTag := fs.String("item-tag", "", "XML element holding one item")
	output := fs.StringP("output", "o", "json", "output format: json or yaml")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("get needs exactly one URL")
	}

	cfg, err := config.Load(*configPath, changedFlags(fs))
	if err != nil {
		return err
	}
	a, err := newApp(cfg, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	req, err := preview.NewRequest(fs.Arg(0), *size, *itemTag)
	if err != nil {
		return err
	}
	items, err := a.service.Preview(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", preview.KindOf(err), err)
	}
	return writeItems(stdout, items, *output)
}

func writeItems(w io.Writer, items feed.Items, format string) error {
	switch format {
	case "yaml":
		d, err := yaml.Marshal(items)
		if err != nil {
			return err
		}
		_, err = w.Write(d)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		enc.SetEscapeHTML(false)
		return enc.Encode(items)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// changedFlags returns a set holding only the flags given on the command
// line, so unset flags do not shadow the config file and environment.
func changedFlags(fs *pflag.FlagSet) *pflag.FlagSet {
	out := pflag.NewFlagSet(fs.Name(), pflag.ContinueOnError)
	fs.Visit(func(f *pflag.Flag) {
		out.AddFlag(f)
	})
	return out
}
