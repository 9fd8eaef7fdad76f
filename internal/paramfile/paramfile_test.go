package paramfile

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesFlatSectionKeyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.txt")
	content := "# a comment\n\n% another comment style\nTimeIntegration:dt_min = 1e-6\nScheduler:max_top_level_cells = 8\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.Has("TimeIntegration:dt_min") {
		t.Fatal("expected TimeIntegration:dt_min to be set")
	}
	if got := s.Float("TimeIntegration:dt_min", -1); got != 1e-6 {
		t.Fatalf("Float = %v, want 1e-6", got)
	}
	if got := s.Int("Scheduler:max_top_level_cells", -1); got != 8 {
		t.Fatalf("Int = %v, want 8", got)
	}
}

func TestLoadRejectsLineWithoutEquals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(path, []byte("ThisHasNoEquals\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a line missing '='")
	}
}

func TestGettersFallBackToDefault(t *testing.T) {
	s := New()
	s.Set("Section:present", "not-a-number")
	if got := s.Int("Section:present", 7); got != 7 {
		t.Fatalf("Int with unparsable value = %v, want default 7", got)
	}
	if got := s.Float("Section:missing", 2.5); got != 2.5 {
		t.Fatalf("Float with missing key = %v, want default 2.5", got)
	}
	if got := s.String("Section:missing", "fallback"); got != "fallback" {
		t.Fatalf("String with missing key = %q, want fallback", got)
	}
}

func TestBoolParsesCommonSpellings(t *testing.T) {
	s := New()
	s.Set("a", "yes")
	s.Set("b", "0")
	s.Set("c", "garbage")
	if !s.Bool("a", false) {
		t.Fatal("expected 'yes' to parse true")
	}
	if s.Bool("b", true) {
		t.Fatal("expected '0' to parse false")
	}
	if !s.Bool("c", true) {
		t.Fatal("expected an unparsable value to fall back to the default")
	}
}

func TestDumpWritesSortedKeyValuePairs(t *testing.T) {
	s := New()
	s.Set("Zeta:key", "2")
	s.Set("Alpha:key", "1")

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := s.Dump(w); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	want := "Alpha:key = 1\nZeta:key = 2\n"
	if buf.String() != want {
		t.Fatalf("Dump output = %q, want %q", buf.String(), want)
	}
}
