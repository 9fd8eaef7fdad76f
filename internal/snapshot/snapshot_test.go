package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/fjeanquartier/swiftsim/internal/part"
)

func TestWriteCreatesPerTypeDirectoriesAndHeader(t *testing.T) {
	root := t.TempDir()
	store := &part.Store{
		Parts:  []part.Particle{{X: 1, Y: 2, Z: 3, Mass: 1, H: 0.5, U: 10, Rho: 2, GpartIndex: -1}},
		GParts: []part.GravParticle{{X: 1, Y: 2, Z: 3, Mass: 5}},
	}

	if err := Write(root, 3, 0.5, [3]float64{10, 10, 10}, true, false, store); err != nil {
		t.Fatalf("Write: %v", err)
	}

	stepDir := filepath.Join(root, "0003")
	if _, err := os.Stat(filepath.Join(stepDir, "Header.yaml")); err != nil {
		t.Fatalf("Header.yaml missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stepDir, "PartType0", "particles.csv")); err != nil {
		t.Fatalf("PartType0/particles.csv missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stepDir, "PartType0", "particles.attrs.yaml")); err != nil {
		t.Fatalf("PartType0 attrs sidecar missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stepDir, "PartType1", "particles.csv")); err != nil {
		t.Fatalf("PartType1/particles.csv missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stepDir, "PartType4")); !os.IsNotExist(err) {
		t.Fatal("PartType4 should not be created when there are no star particles")
	}

	headerData, err := os.ReadFile(filepath.Join(stepDir, "Header.yaml"))
	if err != nil {
		t.Fatalf("reading Header.yaml: %v", err)
	}
	if !strings.Contains(string(headerData), "Step: 3") {
		t.Fatalf("Header.yaml = %q, want it to record Step: 3", string(headerData))
	}
}

func TestWriteAppendsToManifestAcrossSteps(t *testing.T) {
	root := t.TempDir()
	store := &part.Store{Parts: []part.Particle{{X: 0, GpartIndex: -1}}}

	if err := Write(root, 0, 0, [3]float64{1, 1, 1}, false, false, store); err != nil {
		t.Fatalf("Write step 0: %v", err)
	}
	if err := Write(root, 1, 0.1, [3]float64{1, 1, 1}, false, false, store); err != nil {
		t.Fatalf("Write step 1: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "manifest.yaml"))
	if err != nil {
		t.Fatalf("reading manifest.yaml: %v", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("parsing manifest: %v", err)
	}
	if len(m.Outputs) != 2 {
		t.Fatalf("manifest has %d outputs, want 2: %v", len(m.Outputs), m.Outputs)
	}
}
