package paramfile

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fjeanquartier/swiftsim/internal/swifterr"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// document mirrors the nested shape a YAML parameter file takes;
// LoadYAML flattens it into "Section:Key" entries so the rest of the
// engine never has to know whether a run was configured from YAML or
// from a flat text file.
type document struct {
	TimeIntegration    map[string]string `yaml:"TimeIntegration"`
	Snapshots          map[string]string `yaml:"Snapshots"`
	Statistics         map[string]string `yaml:"Statistics"`
	Restarts           map[string]string `yaml:"Restarts"`
	InitialConditions  map[string]string `yaml:"InitialConditions"`
	DomainDecomposition map[string]string `yaml:"DomainDecomposition"`
	Scheduler          map[string]string `yaml:"Scheduler"`
}

func (d document) flatten(s *Set) {
	sections := map[string]map[string]string{
		"TimeIntegration":     d.TimeIntegration,
		"Snapshots":           d.Snapshots,
		"Statistics":          d.Statistics,
		"Restarts":            d.Restarts,
		"InitialConditions":   d.InitialConditions,
		"DomainDecomposition": d.DomainDecomposition,
		"Scheduler":           d.Scheduler,
	}
	for section, kv := range sections {
		for k, v := range kv {
			s.Set(section+":"+k, v)
		}
	}
}

// LoadYAML loads parameters from a YAML file, merging them over the
// module's embedded defaults the same way the teacher's config
// package merges a user file over its embedded defaults.yaml.
func LoadYAML(path string) (*Set, error) {
	s := New()

	var defaults document
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		return nil, swifterr.Wrap(swifterr.Configuration, "parsing embedded parameter defaults", err)
	}
	defaults.flatten(s)

	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, swifterr.Wrap(swifterr.IO, "reading YAML parameter file "+path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, swifterr.Wrap(swifterr.Configuration, fmt.Sprintf("parsing YAML parameter file %s", path), err)
	}
	doc.flatten(s)
	return s, nil
}
