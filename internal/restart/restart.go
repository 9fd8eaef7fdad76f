// Package restart serializes engine state and the particle arrays to
// one file per rank using encoding/gob. The task graph itself is
// never serialized: it is rebuilt from scratch on the first
// post-restart step, the same as a normal rebuild.
package restart

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fjeanquartier/swiftsim/internal/part"
	"github.com/fjeanquartier/swiftsim/internal/swifterr"
)

// State is everything needed to resume a run: the engine's clock and
// domain metadata plus the particle arrays. Anything derivable from
// these (the cell tree, the task graph) is rebuilt after Load rather
// than stored.
type State struct {
	Step       int
	Time       float64
	Box        [3]float64
	Periodic   bool
	EntropyICs bool
	Store      part.Store
}

// Path returns the conventional restart file name for a rank under
// subdir: "<subdir>/<basename>_<rank>.rst".
func Path(subdir, basename string, rank int) string {
	return filepath.Join(subdir, fmt.Sprintf("%s_%d.rst", basename, rank))
}

// Save gob-encodes state to Path(subdir, basename, rank), creating
// subdir if needed. It writes to a temporary file first and renames
// into place, so a crash mid-write never corrupts the previous
// restart file the stop-file protocol may still need.
func Save(subdir, basename string, rank int, state State) error {
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		return swifterr.Wrap(swifterr.IO, "creating restart directory "+subdir, err)
	}
	final := Path(subdir, basename, rank)
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return swifterr.Wrap(swifterr.IO, "creating restart temp file "+tmp, err)
	}
	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(state); err != nil {
		f.Close()
		return swifterr.Wrap(swifterr.IO, "encoding restart state", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return swifterr.Wrap(swifterr.IO, "flushing restart file", err)
	}
	if err := f.Close(); err != nil {
		return swifterr.Wrap(swifterr.IO, "closing restart temp file", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return swifterr.Wrap(swifterr.IO, "renaming restart file into place", err)
	}
	return nil
}

// Load reads back the state Save wrote for rank.
func Load(subdir, basename string, rank int) (State, error) {
	path := Path(subdir, basename, rank)
	f, err := os.Open(path)
	if err != nil {
		return State{}, swifterr.Wrap(swifterr.IO, "opening restart file "+path, err)
	}
	defer f.Close()

	var state State
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&state); err != nil {
		return State{}, swifterr.Wrap(swifterr.IO, "decoding restart file "+path, err)
	}
	return state, nil
}

// StopFilePresent implements the stop-file protocol's rank-0 poll:
// it reports whether a file named stopFileName exists under subdir.
func StopFilePresent(subdir, stopFileName string) bool {
	_, err := os.Stat(filepath.Join(subdir, stopFileName))
	return err == nil
}

// ClearStopFile removes the stop file after every rank has dumped a
// restart and is about to exit, so a subsequent run isn't immediately
// stopped again.
func ClearStopFile(subdir, stopFileName string) error {
	err := os.Remove(filepath.Join(subdir, stopFileName))
	if err != nil && !os.IsNotExist(err) {
		return swifterr.Wrap(swifterr.IO, "removing stop file", err)
	}
	return nil
}
