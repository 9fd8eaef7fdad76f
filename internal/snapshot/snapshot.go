// Package snapshot writes one output per dump request as a
// directory-sharded tree of CSV files, one directory per step and one
// CSV per particle-type group. The gas and gravity groups are
// annotated by a companion .attrs.yaml sidecar carrying the
// unit-conversion metadata a real HDF5 dataset attribute would hold;
// the star group has no sidecar. No HDF5 binding is reachable from
// this module (see DESIGN.md), so this is the CSV/YAML rendering of
// the hierarchical Header/PartType0../PartTypeN layout snapshot files
// conventionally use.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/fjeanquartier/swiftsim/internal/part"
	"github.com/fjeanquartier/swiftsim/internal/swifterr"
)

// Header mirrors the Header group of a hierarchical snapshot file.
type Header struct {
	BoxSize           [3]float64 `yaml:"BoxSize"`
	Dimension         int        `yaml:"Dimension"`
	FlagEntropyICs    bool       `yaml:"Flag_Entropy_ICs"`
	NumPartTotal      [3]int64   `yaml:"NumPart_Total"` // gas, gravity, star
	NumFilesPerSnapshot int      `yaml:"NumFilesPerSnapshot"`
	Time              float64    `yaml:"Time"`
	Step              int        `yaml:"Step"`
}

// FieldAttrs is the CGS/h-scale/a-scale conversion metadata a real
// dataset attribute set would carry for one column, written into the
// .attrs.yaml sidecar.
type FieldAttrs struct {
	Field            string  `yaml:"field"`
	CGSConversion    float64 `yaml:"cgs_conversion_factor"`
	HScaleExponent   float64 `yaml:"h_scale_exponent"`
	AScaleExponent   float64 `yaml:"a_scale_exponent"`
	Description      string  `yaml:"conversion_string"`
}

// gasRow, gravRow, and starRow are the flat CSV projections of
// part.Particle, part.GravParticle, and part.StarParticle.
type gasRow struct {
	X, Y, Z    float64 `csv:"Coordinates_x,Coordinates_y,Coordinates_z"`
	VX, VY, VZ float64 `csv:"Velocities_x,Velocities_y,Velocities_z"`
	Mass       float64 `csv:"Masses"`
	H          float64 `csv:"SmoothingLength"`
	U          float64 `csv:"InternalEnergy"`
	Rho        float64 `csv:"Density"`
}

type gravRow struct {
	X, Y, Z       float64 `csv:"Coordinates_x,Coordinates_y,Coordinates_z"`
	VX, VY, VZ    float64 `csv:"Velocities_x,Velocities_y,Velocities_z"`
	Mass          float64 `csv:"Masses"`
	IDOrNegOffset int64   `csv:"ParticleIDs"`
}

type starRow struct {
	X, Y, Z    float64 `csv:"Coordinates_x,Coordinates_y,Coordinates_z"`
	VX, VY, VZ float64 `csv:"Velocities_x,Velocities_y,Velocities_z"`
	Mass       float64 `csv:"Masses"`
	BirthTime  float64 `csv:"BirthTime"`
}

// Write dumps one full snapshot for step under root, as
// root/<step>/Header.yaml, root/<step>/PartType0/particles.csv (+
// .attrs.yaml), PartType1 for gravity particles, PartType4 for stars.
func Write(root string, step int, time float64, box [3]float64, periodic, entropyICs bool, store *part.Store) error {
	dir := filepath.Join(root, fmt.Sprintf("%04d", step))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return swifterr.Wrap(swifterr.IO, "creating snapshot directory "+dir, err)
	}

	header := Header{
		BoxSize:        box,
		Dimension:      3,
		FlagEntropyICs: entropyICs,
		NumPartTotal:   [3]int64{int64(len(store.Parts)), int64(len(store.GParts)), int64(len(store.SParts))},
		NumFilesPerSnapshot: 1,
		Time:           time,
		Step:           step,
	}
	if err := writeYAML(filepath.Join(dir, "Header.yaml"), header); err != nil {
		return err
	}

	if err := writeGas(dir, store.Parts); err != nil {
		return err
	}
	if err := writeGrav(dir, store.GParts); err != nil {
		return err
	}
	if err := writeStars(dir, store.SParts); err != nil {
		return err
	}
	return appendManifest(root, dir)
}

func writeGas(dir string, parts []part.Particle) error {
	if len(parts) == 0 {
		return nil
	}
	groupDir := filepath.Join(dir, "PartType0")
	if err := os.MkdirAll(groupDir, 0o755); err != nil {
		return swifterr.Wrap(swifterr.IO, "creating PartType0 directory", err)
	}
	rows := make([]gasRow, len(parts))
	for i, p := range parts {
		rows[i] = gasRow{X: p.X, Y: p.Y, Z: p.Z, VX: p.VX, VY: p.VY, VZ: p.VZ, Mass: p.Mass, H: p.H, U: p.U, Rho: p.Rho}
	}
	if err := writeCSV(filepath.Join(groupDir, "particles.csv"), rows); err != nil {
		return err
	}
	return writeAttrs(groupDir, []FieldAttrs{
		{Field: "Coordinates", CGSConversion: 3.0857e21, HScaleExponent: -1, AScaleExponent: 1, Description: "a * h^-1 * cm"},
		{Field: "Velocities", CGSConversion: 1e5, HScaleExponent: 0, AScaleExponent: 0.5, Description: "a^1/2 * cm/s"},
		{Field: "Masses", CGSConversion: 1.989e43, HScaleExponent: -1, AScaleExponent: 0, Description: "h^-1 * g"},
		{Field: "SmoothingLength", CGSConversion: 3.0857e21, HScaleExponent: -1, AScaleExponent: 1, Description: "a * h^-1 * cm"},
		{Field: "InternalEnergy", CGSConversion: 1e10, HScaleExponent: 0, AScaleExponent: -2, Description: "a^-2 * cm^2/s^2"},
		{Field: "Density", CGSConversion: 6.77e-22, HScaleExponent: 2, AScaleExponent: -3, Description: "a^-3 * h^2 * g/cm^3"},
	})
}

func writeGrav(dir string, gparts []part.GravParticle) error {
	if len(gparts) == 0 {
		return nil
	}
	groupDir := filepath.Join(dir, "PartType1")
	if err := os.MkdirAll(groupDir, 0o755); err != nil {
		return swifterr.Wrap(swifterr.IO, "creating PartType1 directory", err)
	}
	rows := make([]gravRow, len(gparts))
	for i, g := range gparts {
		rows[i] = gravRow{X: g.X, Y: g.Y, Z: g.Z, VX: g.VX, VY: g.VY, VZ: g.VZ, Mass: g.Mass, IDOrNegOffset: g.IDOrNegOffset}
	}
	if err := writeCSV(filepath.Join(groupDir, "particles.csv"), rows); err != nil {
		return err
	}
	return writeAttrs(groupDir, []FieldAttrs{
		{Field: "Coordinates", CGSConversion: 3.0857e21, HScaleExponent: -1, AScaleExponent: 1, Description: "a * h^-1 * cm"},
		{Field: "Masses", CGSConversion: 1.989e43, HScaleExponent: -1, AScaleExponent: 0, Description: "h^-1 * g"},
	})
}

func writeStars(dir string, sparts []part.StarParticle) error {
	if len(sparts) == 0 {
		return nil
	}
	groupDir := filepath.Join(dir, "PartType4")
	if err := os.MkdirAll(groupDir, 0o755); err != nil {
		return swifterr.Wrap(swifterr.IO, "creating PartType4 directory", err)
	}
	rows := make([]starRow, len(sparts))
	for i, s := range sparts {
		rows[i] = starRow{X: s.X, Y: s.Y, Z: s.Z, VX: s.VX, VY: s.VY, VZ: s.VZ, Mass: s.Mass, BirthTime: s.BirthTime}
	}
	return writeCSV(filepath.Join(groupDir, "particles.csv"), rows)
}

func writeCSV[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return swifterr.Wrap(swifterr.IO, "creating "+path, err)
	}
	defer f.Close()
	if err := gocsv.Marshal(rows, f); err != nil {
		return swifterr.Wrap(swifterr.IO, "marshaling "+path, err)
	}
	return nil
}

func writeAttrs(groupDir string, attrs []FieldAttrs) error {
	return writeYAML(filepath.Join(groupDir, "particles.attrs.yaml"), attrs)
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return swifterr.Wrap(swifterr.Configuration, "marshaling "+path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return swifterr.Wrap(swifterr.IO, "writing "+path, err)
	}
	return nil
}

// manifest is the XMF-equivalent sidecar listing every output
// directory written so far, for visualization tools to discover.
type manifest struct {
	Outputs []string `yaml:"outputs"`
}

func appendManifest(root, newDir string) error {
	path := filepath.Join(root, "manifest.yaml")
	var m manifest
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return swifterr.Wrap(swifterr.Configuration, "parsing existing manifest.yaml", err)
		}
	}
	rel, err := filepath.Rel(root, newDir)
	if err != nil {
		rel = newDir
	}
	m.Outputs = append(m.Outputs, rel)
	return writeYAML(path, m)
}
