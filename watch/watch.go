// Package watch periodically scans a replay directory, decodes the new replays
// and records the eligible matches.
//
// Processed replays are moved out of the scanned directory: to the parsed directory
// when recorded or not eligible, to the error directory when they fail to decode or
// cannot be stored. A replay whose name already exists in the destination is deleted.
// A replay interrupted by cancellation stays in the scanned directory for the next scan.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/ufw/w3g"
	"github.com/ufw/w3g/config"
	"github.com/ufw/w3g/validate"
	"golang.org/x/sync/errgroup"
)

// ReplayExt is the extension of the replay files picked up.
const ReplayExt = ".w3g"

// Inserter records a decoded match, returning the id of the stored game.
type Inserter interface {
	InsertMatch(ctx context.Context, m *w3g.Match, serverName string) (string, error)
}

// Stats counts the outcome of a scan.
type Stats struct {
	Stored   int
	Rejected int
	Failed   int
}

// Watcher processes the replays of a directory.
type Watcher struct {
	replayPath string
	parsedPath string
	errorPath  string
	server     string
	mapVersion string
	workers    int
	period     time.Duration
	rules      validate.Rules
	store      Inserter

	decode func(name string) (*w3g.Match, error)
}

// New returns a Watcher configured by cfg, storing matches in store.
func New(cfg *config.Config, store Inserter) *Watcher {
	rules := validate.Default()
	rules.MinDuration = cfg.MinDuration()

	return &Watcher{
		replayPath: cfg.ReplayPath,
		parsedPath: cfg.ParsedReplayPath,
		errorPath:  cfg.ErrorReplayPath,
		server:     cfg.Server,
		mapVersion: cfg.MapVersion,
		workers:    max(cfg.Workers, 1),
		period:     cfg.ParsePeriod(),
		rules:      rules,
		store:      store,
		decode:     w3g.NewFromFile,
	}
}

// Run scans the replay directory once and then every period until ctx is done.
// Scan failures are logged, they do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	log.Info().Str("path", w.replayPath).Dur("period", w.period).Msg("watching replays")

	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("scan failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes the replays currently in the replay directory.
// The returned error reports a failure to list the directory or a cancelled ctx,
// replay failures are only counted.
func (w *Watcher) RunOnce(ctx context.Context) (Stats, error) {
	names, err := w.replays()
	if err != nil {
		return Stats{}, err
	}
	if len(names) == 0 {
		return Stats{}, nil
	}

	var (
		mu    sync.Mutex
		stats Stats
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			o := w.process(ctx, name)
			if o == outcomeInterrupted {
				return ctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			switch o {
			case outcomeStored:
				stats.Stored++
			case outcomeRejected:
				stats.Rejected++
			default:
				stats.Failed++
			}
			return nil
		})
	}
	err = g.Wait()

	log.Info().Int("stored", stats.Stored).Int("rejected", stats.Rejected).Int("failed", stats.Failed).Msg("replays processed")
	return stats, err
}

// replays lists the replay files of the replay directory in name order.
func (w *Watcher) replays() ([]string, error) {
	entries, err := os.ReadDir(w.replayPath)
	if err != nil {
		return nil, errors.Wrapf(err, "list replays in %s", w.replayPath)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ReplayExt) {
			names = append(names, filepath.Join(w.replayPath, e.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

type outcome int

const (
	outcomeStored outcome = iota
	outcomeRejected
	outcomeFailed
	outcomeInterrupted
)

// process decodes, checks and stores one replay, then moves it out of the replay directory.
func (w *Watcher) process(ctx context.Context, name string) outcome {
	logger := log.With().Str("replay", filepath.Base(name)).Logger()

	o, err := w.record(ctx, name)
	if o == outcomeFailed && ctx.Err() != nil {
		logger.Warn().Err(err).Msg("replay interrupted, left for the next scan")
		return outcomeInterrupted
	}
	dest := w.parsedPath
	switch o {
	case outcomeStored:
		logger.Info().Msg("replay stored")
	case outcomeRejected:
		logger.Info().Err(err).Msg("replay not eligible, not stored")
	default:
		logger.Error().Err(err).Msg("replay failed")
		dest = w.errorPath
	}

	if err := moveFile(name, dest); err != nil {
		logger.Error().Err(err).Str("dest", dest).Msg("move replay")
	}
	return o
}

func (w *Watcher) record(ctx context.Context, name string) (outcome, error) {
	m, err := w.decode(name)
	if err != nil {
		return outcomeFailed, err
	}
	m.MapVersion = w.mapVersion

	if err := w.rules.Check(m); err != nil {
		return outcomeRejected, err
	}

	gameID, err := w.store.InsertMatch(ctx, m, w.server)
	if err != nil {
		return outcomeFailed, err
	}
	log.Debug().Str("game", gameID).Str("replay", filepath.Base(name)).Int("players", len(m.Players)).Msg("match recorded")
	return outcomeStored, nil
}

// moveFile moves the file name into dir, creating dir if needed.
// If dir already has a file with the same base name, name is deleted instead.
func moveFile(name, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	dst := filepath.Join(dir, filepath.Base(name))
	if _, err := os.Stat(dst); err == nil {
		return errors.Wrapf(os.Remove(name), "remove duplicate %s", name)
	}
	return errors.Wrapf(os.Rename(name, dst), "move to %s", dst)
}
