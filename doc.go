/*

Package w3g is a decoder of Warcraft III replay files (*.w3g) recorded from the Fate map.

Besides the file structure (header, compressed data blocks, game setup and replay data records),
it interprets the custom events the map tunnels through SyncStoredInteger trigger calls,
and reconstructs the match: players, teams, servants, kills / deaths / assists, items, chat.
Game actions other than the custom events are skipped by their size.

Only replays of The Frozen Throne with a version 1 header (patch 1.07 and later) are supported.

Usage

Decoding a replay file:

	m, err := w3g.NewFromFile("FRS 2013-11-01 20-15-30.w3g")
	if err != nil {
		// Handle error
		return
	}
	fmt.Println(m.GameName, m.Mode, m.Result())
	for _, p := range m.Players {
		fmt.Printf("%s team %d: %d/%d/%d\n", p.Name, p.Team+1, p.Kills, p.Deaths, p.Assists)
	}

If you already have the replay data in memory:

	replaydata := []byte{} // Replay data in memory
	m, err := w3g.Decode(replaydata)

Failures are *DecodeError values, the kind can be tested with errors.Is:

	if errors.Is(err, w3g.ErrUnknownOpcode) {
		// Unsupported game version?
	}

Custom events

The map calls SyncStoredInteger(cache, category, key) for every notable occurrence.
The key is the event id followed by the detail, e.g. "E42/3//5" for a Kill of game id 5 by game id 3.
Every connected player records the same call, so events are applied once per event id.

	GameMode          DM | CTF | Ranked
	PracticeMode      (ignored)
	RoundVictory      T1 | T2 | Draw
	ServantSelection  name//gameId//servantId//team
	Kill              killerGameId//victimGameId
	Assist            gameId
	Suicide           gameId
	Attribute         gameId//abilityId
	Stat              gameId//abilityId
	CommandSeal       gameId//abilityId
	GodsHelp          gameId//abilityId
	ItemBuy           gameId//itemId
	Damage            sourceGameId//targetGameId//amount
	LevelUp           gameId//level
	Forfeit           team (no effect)

Information sources

W3G format description: http://w3g.deepnode.de/files/w3g_format.txt

W3G actions: http://w3g.deepnode.de/files/w3g_actions.txt

*/
package w3g
