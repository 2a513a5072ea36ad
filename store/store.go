// Package store persists decoded matches and the per player statistics derived from them.
package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/ufw/w3g"

	_ "modernc.org/sqlite"
)

var (
	// ErrUnknownServer indicates a server name that was never registered.
	ErrUnknownServer = errors.New("store: unknown server")

	// ErrServerNotServiced indicates a registered server whose matches are not accepted.
	ErrServerNotServiced = errors.New("store: server not serviced")
)

// Per player results stored in game_player_details.
const (
	resultWin  = "WIN"
	resultLoss = "LOSS"
	resultNone = "NONE"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS servers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		serviced INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id INTEGER NOT NULL REFERENCES servers(id),
		name TEXT NOT NULL,
		banned INTEGER NOT NULL DEFAULT 0,
		registered_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (server_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		server_id INTEGER NOT NULL REFERENCES servers(id),
		name TEXT NOT NULL,
		log TEXT NOT NULL,
		match_type TEXT NOT NULL,
		map_version TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		played_at TEXT NOT NULL,
		replay_path TEXT NOT NULL,
		result TEXT NOT NULL,
		team_one_wins INTEGER NOT NULL,
		team_two_wins INTEGER NOT NULL,
		draws INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS game_player_details (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id TEXT NOT NULL REFERENCES games(id),
		player_id INTEGER NOT NULL REFERENCES players(id),
		server_id INTEGER NOT NULL REFERENCES servers(id),
		servant_id TEXT NOT NULL,
		team INTEGER NOT NULL,
		kills INTEGER NOT NULL,
		deaths INTEGER NOT NULL,
		assists INTEGER NOT NULL,
		level INTEGER NOT NULL,
		damage_dealt REAL NOT NULL,
		damage_taken REAL NOT NULL,
		result TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS game_item_purchases (
		detail_id INTEGER NOT NULL REFERENCES game_player_details(id),
		item_id TEXT NOT NULL,
		purchases INTEGER NOT NULL,
		PRIMARY KEY (detail_id, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS player_stats (
		server_id INTEGER NOT NULL REFERENCES servers(id),
		player_id INTEGER NOT NULL REFERENCES players(id),
		plays INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (server_id, player_id)
	)`,
	`CREATE TABLE IF NOT EXISTS player_hero_stats (
		server_id INTEGER NOT NULL REFERENCES servers(id),
		player_id INTEGER NOT NULL REFERENCES players(id),
		servant_id TEXT NOT NULL,
		plays INTEGER NOT NULL DEFAULT 0,
		kills INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		assists INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (server_id, player_id, servant_id)
	)`,
}

// Store is a match store backed by an SQL database (SQLite dialect).
// It is safe for concurrent use.
type Store struct {
	db *sql.DB

	now   func() time.Time
	newID func() string
}

// Open opens the SQLite database at dsn and migrates its schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", dsn)
	}
	// Single writer: transactions of parallel decoders queue up instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New returns a store using db, creating the missing tables.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate schema")
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterServer registers a serviced server by name.
// An existing server is left as is, SetServiced alone toggles its flag.
func (s *Store) RegisterServer(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO servers (name, serviced) VALUES (?, 1) ON CONFLICT (name) DO NOTHING`, name)
	return errors.Wrapf(err, "register server %s", name)
}

// SetServiced registers the server if needed and sets whether its matches are accepted.
func (s *Store) SetServiced(ctx context.Context, name string, serviced bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO servers (name, serviced) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET serviced = excluded.serviced`,
		name, serviced)
	return errors.Wrapf(err, "set server %s serviced", name)
}

// InsertMatch stores a decoded match played on the named server and updates
// the statistics of its players, all in one transaction. Observers are not stored.
// It returns the id of the new game.
func (s *Store) InsertMatch(ctx context.Context, m *w3g.Match, serverName string) (gameID string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				log.Error().Err(rerr).Msg("rollback failed")
			}
		}
	}()

	serverID, err := s.serverID(ctx, tx, serverName)
	if err != nil {
		return "", err
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	result := m.Result()
	gameID = s.newID()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO games (id, server_id, name, log, match_type, map_version, duration_ms, played_at, replay_path,
			result, team_one_wins, team_two_wins, draws)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gameID, serverID, m.GameName, strings.Join(m.Chat, "\n"), m.Mode.String(), m.MapVersion,
		m.Duration().Milliseconds(), m.PlayedAt.UTC().Format(time.RFC3339), m.ReplayPath,
		string(result), m.TeamOneVictories, m.TeamTwoVictories, m.Draws)
	if err != nil {
		return "", errors.Wrap(err, "insert game")
	}

	stored := 0
	for _, p := range m.Players {
		if p.Observer {
			continue
		}
		if err = s.insertPlayer(ctx, tx, serverID, gameID, now, result, p); err != nil {
			return "", errors.Wrapf(err, "player %s", p.Name)
		}
		stored++
	}

	if err = tx.Commit(); err != nil {
		return "", errors.Wrap(err, "commit")
	}

	log.Debug().Str("game", gameID).Str("server", serverName).Int("players", stored).Msg("match stored")
	return gameID, nil
}

func (s *Store) serverID(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	var serviced bool
	err := tx.QueryRowContext(ctx, `SELECT id, serviced FROM servers WHERE name = ?`, name).Scan(&id, &serviced)
	if err == sql.ErrNoRows {
		return 0, errors.Wrap(ErrUnknownServer, name)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "query server %s", name)
	}
	if !serviced {
		return 0, errors.Wrap(ErrServerNotServiced, name)
	}
	return id, nil
}

// insertPlayer upserts the player and stores its game details and statistics.
func (s *Store) insertPlayer(ctx context.Context, tx *sql.Tx, serverID int64, gameID, now string, result w3g.Result, p *w3g.Player) error {
	playerResult, err := resultOf(result, p.Team)
	if err != nil {
		return err
	}

	var playerID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO players (server_id, name, registered_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (server_id, name) DO UPDATE SET updated_at = excluded.updated_at
		RETURNING id`,
		serverID, p.Name, now, now).Scan(&playerID)
	if err != nil {
		return errors.Wrap(err, "upsert player")
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO game_player_details (game_id, player_id, server_id, servant_id, team, kills, deaths, assists,
			level, damage_dealt, damage_taken, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gameID, playerID, serverID, p.ServantID, p.Team+1, p.Kills, p.Deaths, p.Assists,
		p.ServantLevel, p.DamageDealt, p.DamageTaken, playerResult)
	if err != nil {
		return errors.Wrap(err, "insert game details")
	}
	detailID, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "game details id")
	}

	for _, item := range countItems(p.Items) {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO game_item_purchases (detail_id, item_id, purchases) VALUES (?, ?, ?)`,
			detailID, item.id, item.count); err != nil {
			return errors.Wrapf(err, "insert purchases of %s", item.id)
		}
	}

	var win, loss int
	switch playerResult {
	case resultWin:
		win = 1
	case resultLoss:
		loss = 1
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO player_stats (server_id, player_id, plays, wins, losses) VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (server_id, player_id) DO UPDATE SET
			plays = plays + 1, wins = wins + excluded.wins, losses = losses + excluded.losses`,
		serverID, playerID, win, loss); err != nil {
		return errors.Wrap(err, "upsert player stats")
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO player_hero_stats (server_id, player_id, servant_id, plays, kills, deaths, assists)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (server_id, player_id, servant_id) DO UPDATE SET
			plays = plays + 1, kills = kills + excluded.kills,
			deaths = deaths + excluded.deaths, assists = assists + excluded.assists`,
		serverID, playerID, p.ServantID, p.Kills, p.Deaths, p.Assists); err != nil {
		return errors.Wrap(err, "upsert hero stats")
	}

	return nil
}

// resultOf returns the result of a player of the given team (0 based).
func resultOf(result w3g.Result, team int) (string, error) {
	if result == w3g.NoResult {
		return resultNone, nil
	}
	if team != 0 && team != 1 {
		return "", errors.Errorf("unexpected team %d", team)
	}
	if (result == w3g.TeamOneWin) == (team == 0) {
		return resultWin, nil
	}
	return resultLoss, nil
}

type itemCount struct {
	id    string
	count int
}

// countItems groups purchased item ids, ordered by item id.
func countItems(items []string) []itemCount {
	counts := map[string]int{}
	for _, id := range items {
		counts[id]++
	}
	list := make([]itemCount, 0, len(counts))
	for id, n := range counts {
		list = append(list, itemCount{id, n})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}
