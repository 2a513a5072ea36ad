// Command frsparser watches a directory of Fate replays and records the decoded
// matches in the statistics database.
//
// With -dump it decodes the given replay files and prints the matches as JSON instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/ufw/w3g"
	"github.com/ufw/w3g/config"
	"github.com/ufw/w3g/store"
	"github.com/ufw/w3g/watch"
)

var (
	configPath = flag.String("c", "config.yaml", "Config file")
	replayPath = flag.String("p", "", "Replay directory, overrides the config file")
	once       = flag.Bool("once", false, "Process the replay directory once and exit")
	dump       = flag.Bool("dump", false, "Decode the replay files given as arguments and print them as JSON")
	verbose    = flag.Bool("v", false, "Debug logging")
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if *dump {
		setVerbose()
		if err := dumpReplays(flag.Args()); err != nil {
			log.Fatal().Err(err).Msg("dump failed")
		}
		return
	}

	if path := config.LoadDotEnv(".env", "../.env"); path != "" {
		log.Debug().Str("path", path).Msg("loaded .env")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *replayPath != "" {
		cfg.ReplayPath = *replayPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("invalid config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level")
	}
	setVerbose()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("frsparser failed")
	}
}

func setVerbose() {
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RegisterServer(ctx, cfg.Server); err != nil {
		return err
	}

	w := watch.New(cfg, s)
	if *once {
		_, err := w.RunOnce(ctx)
		return err
	}
	return w.Run(ctx)
}

func dumpReplays(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("no replay files given")
	}

	for _, name := range names {
		m, err := w3g.NewFromFile(name)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	return nil
}
