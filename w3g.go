package w3g

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Layout of the date and time fields in replay file names,
// e.g. "FRS 2013-11-01 20-15-30.w3g".
const fileNameTimeLayout = "2006-01-02 15-04-05"

// decoder holds the state of decoding a single replay.
// The match is owned exclusively by the decoder until Decode returns.
type decoder struct {
	m      *Match
	events *eventSet
}

// Decode decodes a complete replay held in memory.
//
// Either the complete match or an error is returned, never a partial match.
// Errors are of type *DecodeError, wrapping one of the Err* kinds.
func Decode(data []byte) (*Match, error) {
	h, off, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	blocks, err := ReadBlocks(data, off)
	if err != nil {
		return nil, err
	}
	if int(h.BlockCount) != len(blocks) {
		log.Debug().Uint32("declared", h.BlockCount).Int("found", len(blocks)).Msg("block count mismatch")
	}

	d := &decoder{m: &Match{Header: h}, events: newEventSet()}

	setupEnd, err := d.parseSetup(blocks[0].Decompressed)
	if err != nil {
		return nil, err
	}
	if err = d.parseStream(concat(blocks), setupEnd); err != nil {
		return nil, err
	}
	if err = d.applyEvents(); err != nil {
		return nil, err
	}
	if err = d.m.inferObservers(); err != nil {
		return nil, err
	}

	return d.m, nil
}

// New decodes a replay read from input until EOF.
func New(input io.Reader) (*Match, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(input); err != nil {
		return nil, errors.Wrap(err, "read replay")
	}
	return Decode(buf.Bytes())
}

// NewFromFile decodes the replay file specified by its name.
//
// The replay path of the returned match is set to name, and the time it was played at
// is taken from the file name if it has the form "<prefix> 2006-01-02 15-04-05[ ...].w3g",
// else from the modification time of the file.
func NewFromFile(name string) (*Match, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "read replay %s", name)
	}

	m, err := Decode(data)
	if err != nil {
		return nil, err
	}

	m.ReplayPath = name
	if t, ok := TimeFromFileName(filepath.Base(name)); ok {
		m.PlayedAt = t
	} else if fi, err := os.Stat(name); err == nil {
		m.PlayedAt = fi.ModTime()
	}

	return m, nil
}

// TimeFromFileName parses the local date and time encoded in a replay file name,
// the second and third space separated fields, e.g. "FRS 2013-11-01 20-15-30.w3g".
func TimeFromFileName(name string) (time.Time, bool) {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	fields := strings.Fields(name)
	if len(fields) < 3 {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(fileNameTimeLayout, fields[1]+" "+fields[2], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
