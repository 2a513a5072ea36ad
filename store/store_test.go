package store

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ufw/w3g"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "frs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	s.now = func() time.Time { return time.Date(2014, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func testMatch() *w3g.Match {
	return &w3g.Match{
		Header:           &w3g.Header{Duration: 30 * 60 * 1000},
		GameName:         "-ar fate",
		Mode:             w3g.Deathmatch,
		TeamOneVictories: 12,
		TeamTwoVictories: 7,
		Chat:             []string{"[Saber]gl", "[Archer]gg"},
		MapVersion:       "Fate/Another Z",
		PlayedAt:         time.Date(2013, 11, 1, 20, 15, 30, 0, time.UTC),
		ReplayPath:       "replays/FRS 2013-11-01 20-15-30.w3g",
		Players: []*w3g.Player{
			{Name: "Saber", ServantID: "H000", Team: 0, Kills: 5, Deaths: 2, Assists: 1, ServantLevel: 20,
				DamageDealt: 1500.5, Items: []string{"I002", "I001", "I002"}},
			{Name: "Archer", ServantID: "H001", Team: 1, Kills: 2, Deaths: 5, ServantLevel: 18, DamageTaken: 1500.5},
			{Name: "Watcher", Observer: true},
		},
	}
}

func TestInsertMatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.RegisterServer(ctx, "useast"))

	gameID, err := s.InsertMatch(ctx, testMatch(), "useast")
	require.NoError(t, err)
	assert.Len(t, gameID, 36)

	var name, log, matchType, result string
	var duration int64
	require.NoError(t, s.db.QueryRow(
		`SELECT name, log, match_type, result, duration_ms FROM games WHERE id = ?`, gameID).
		Scan(&name, &log, &matchType, &result, &duration))
	assert.Equal(t, "-ar fate", name)
	assert.Equal(t, "[Saber]gl\n[Archer]gg", log)
	assert.Equal(t, "DM", matchType)
	assert.Equal(t, "T1W", result)
	assert.Equal(t, int64(30*60*1000), duration)

	var players int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM players`).Scan(&players))
	assert.Equal(t, 2, players, "observers are not stored")

	rows, err := s.db.Query(
		`SELECT p.name, d.team, d.kills, d.result FROM game_player_details d
		JOIN players p ON p.id = d.player_id ORDER BY p.name`)
	require.NoError(t, err)
	defer rows.Close()
	type detail struct {
		name   string
		team   int
		kills  int
		result string
	}
	var details []detail
	for rows.Next() {
		var d detail
		require.NoError(t, rows.Scan(&d.name, &d.team, &d.kills, &d.result))
		details = append(details, d)
	}
	require.NoError(t, rows.Err())
	rows.Close()
	assert.Equal(t, []detail{{"Archer", 2, 2, "LOSS"}, {"Saber", 1, 5, "WIN"}}, details)

	var i1, i2 int
	require.NoError(t, s.db.QueryRow(`SELECT purchases FROM game_item_purchases WHERE item_id = 'I001'`).Scan(&i1))
	require.NoError(t, s.db.QueryRow(`SELECT purchases FROM game_item_purchases WHERE item_id = 'I002'`).Scan(&i2))
	assert.Equal(t, 1, i1)
	assert.Equal(t, 2, i2)
}

func TestInsertMatchAccumulatesStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.RegisterServer(ctx, "useast"))

	m := testMatch()
	_, err := s.InsertMatch(ctx, m, "useast")
	require.NoError(t, err)

	m.TeamOneVictories, m.TeamTwoVictories = 3, 12
	_, err = s.InsertMatch(ctx, m, "useast")
	require.NoError(t, err)

	m.TeamOneVictories, m.TeamTwoVictories = 5, 5
	_, err = s.InsertMatch(ctx, m, "useast")
	require.NoError(t, err)

	var plays, wins, losses int
	require.NoError(t, s.db.QueryRow(
		`SELECT s.plays, s.wins, s.losses FROM player_stats s JOIN players p ON p.id = s.player_id WHERE p.name = ?`,
		"Saber").Scan(&plays, &wins, &losses))
	assert.Equal(t, 3, plays)
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	var heroPlays, kills, deaths int
	require.NoError(t, s.db.QueryRow(
		`SELECT h.plays, h.kills, h.deaths FROM player_hero_stats h JOIN players p ON p.id = h.player_id
		WHERE p.name = ? AND h.servant_id = ?`, "Archer", "H001").Scan(&heroPlays, &kills, &deaths))
	assert.Equal(t, 3, heroPlays)
	assert.Equal(t, 6, kills)
	assert.Equal(t, 15, deaths)

	var games int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM games`).Scan(&games))
	assert.Equal(t, 3, games)
}

func TestInsertMatchServer(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.InsertMatch(ctx, testMatch(), "useast")
	assert.ErrorIs(t, err, ErrUnknownServer)

	require.NoError(t, s.RegisterServer(ctx, "useast"))
	require.NoError(t, s.SetServiced(ctx, "useast", false))
	_, err = s.InsertMatch(ctx, testMatch(), "useast")
	assert.ErrorIs(t, err, ErrServerNotServiced)

	var games int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM games`).Scan(&games))
	assert.Zero(t, games)
}

func TestRegisterServerKeepsServiced(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.RegisterServer(ctx, "useast"))
	require.NoError(t, s.SetServiced(ctx, "useast", false))
	require.NoError(t, s.RegisterServer(ctx, "useast"))

	_, err := s.InsertMatch(ctx, testMatch(), "useast")
	assert.ErrorIs(t, err, ErrServerNotServiced)

	require.NoError(t, s.SetServiced(ctx, "useast", true))
	_, err = s.InsertMatch(ctx, testMatch(), "useast")
	assert.NoError(t, err)

	var servers int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM servers`).Scan(&servers))
	assert.Equal(t, 1, servers)
}

func TestInsertMatchUnexpectedTeam(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.RegisterServer(ctx, "useast"))

	m := testMatch()
	m.Players[1].Team = 4
	_, err := s.InsertMatch(ctx, m, "useast")
	require.Error(t, err)

	// Rolled back: neither the game nor the first player remain
	var games, players int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM games`).Scan(&games))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM players`).Scan(&players))
	assert.Zero(t, games)
	assert.Zero(t, players)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for range schema {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	s, err := New(context.Background(), db)
	require.NoError(t, err)
	s.newID = func() string { return "game-1" }
	return s, mock
}

func TestInsertMatchRollback(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, serviced FROM servers WHERE name = ?")).
		WithArgs("useast").
		WillReturnRows(sqlmock.NewRows([]string{"id", "serviced"}).AddRow(1, true))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO games")).
		WithArgs("game-1", int64(1), "-ar fate", sqlmock.AnyArg(), "DM", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), "T1W", 12, 7, 0).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := s.InsertMatch(context.Background(), testMatch(), "useast")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMatchUnknownServerRollback(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, serviced FROM servers")).
		WithArgs("nowhere").
		WillReturnRows(sqlmock.NewRows([]string{"id", "serviced"}))
	mock.ExpectRollback()

	_, err := s.InsertMatch(context.Background(), testMatch(), "nowhere")
	assert.ErrorIs(t, err, ErrUnknownServer)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS servers").WillReturnError(assert.AnError)
	_, err = New(context.Background(), db)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestResultOf(t *testing.T) {
	cases := []struct {
		result w3g.Result
		team   int
		want   string
	}{
		{w3g.TeamOneWin, 0, resultWin},
		{w3g.TeamOneWin, 1, resultLoss},
		{w3g.TeamTwoWin, 0, resultLoss},
		{w3g.TeamTwoWin, 1, resultWin},
		{w3g.NoResult, 5, resultNone},
	}
	for _, tc := range cases {
		got, err := resultOf(tc.result, tc.team)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := resultOf(w3g.TeamOneWin, 2)
	assert.Error(t, err)
}

func TestCountItems(t *testing.T) {
	assert.Equal(t, []itemCount{{"I001", 1}, {"I002", 2}}, countItems([]string{"I002", "I001", "I002"}))
	assert.Empty(t, countItems(nil))
}
