package restart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fjeanquartier/swiftsim/internal/part"
)

func TestPathFollowsConvention(t *testing.T) {
	got := Path("restarts", "swift", 2)
	want := filepath.Join("restarts", "swift_2.rst")
	if got != want {
		t.Fatalf("Path = %q, want %q", got, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	state := State{
		Step: 7,
		Time: 1.25,
		Box:  [3]float64{10, 10, 10},
		Store: part.Store{
			Parts: []part.Particle{{X: 1, Y: 2, Z: 3, Mass: 1, GpartIndex: -1}},
		},
	}

	if err := Save(dir, "swift", 0, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(dir, "swift", 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Step != state.Step || got.Time != state.Time {
		t.Fatalf("Load = %+v, want Step=%d Time=%f", got, state.Step, state.Time)
	}
	if len(got.Store.Parts) != 1 || got.Store.Parts[0].X != 1 {
		t.Fatalf("Load did not round-trip the particle store: %+v", got.Store)
	}

	if _, err := os.Stat(Path(dir, "swift", 0) + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("Save should not leave its temp file behind after a successful rename")
	}
}

func TestLoadMissingFileReturnsIOError(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir, "swift", 0); err == nil {
		t.Fatal("expected an error loading a restart file that was never saved")
	}
}

func TestStopFileProtocol(t *testing.T) {
	dir := t.TempDir()
	if StopFilePresent(dir, "stop") {
		t.Fatal("StopFilePresent should be false before the file is created")
	}

	if err := os.WriteFile(filepath.Join(dir, "stop"), nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !StopFilePresent(dir, "stop") {
		t.Fatal("StopFilePresent should be true once the file exists")
	}

	if err := ClearStopFile(dir, "stop"); err != nil {
		t.Fatalf("ClearStopFile: %v", err)
	}
	if StopFilePresent(dir, "stop") {
		t.Fatal("StopFilePresent should be false after ClearStopFile")
	}

	if err := ClearStopFile(dir, "stop"); err != nil {
		t.Fatalf("ClearStopFile on an already-absent file should not error: %v", err)
	}
}
