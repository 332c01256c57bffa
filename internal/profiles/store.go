// Package profiles stores named port-pair sets in profiles.yaml so common
// forwarding setups can be started by name.
package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"devfwd/internal/appconfig"
	"devfwd/internal/model"
	"devfwd/internal/util"
)

// Definition is a named set of requested port pairs.
type Definition struct {
	Name  string           `yaml:"name" json:"name"`
	Pairs []model.PortPair `yaml:"pairs" json:"pairs"`
}

type fileModel struct {
	Profiles map[string]Definition `yaml:"profiles"`
}

func filePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles.yaml"), nil
}

// LoadAll returns all profiles sorted by name.
func LoadAll() ([]Definition, error) {
	fm, err := loadFile()
	if err != nil {
		return nil, err
	}
	out := make([]Definition, 0, len(fm.Profiles))
	for _, p := range fm.Profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get fetches one profile by name.
func Get(name string) (Definition, error) {
	fm, err := loadFile()
	if err != nil {
		return Definition{}, err
	}
	p, ok := fm.Profiles[name]
	if !ok {
		return Definition{}, fmt.Errorf("profile not found: %s", name)
	}
	return p, nil
}

// Save validates and stores a profile, replacing any existing definition
// with the same name.
func Save(def Definition) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if len(def.Pairs) == 0 {
		return fmt.Errorf("profile %s has no port pairs", def.Name)
	}
	seen := map[int]bool{}
	for _, p := range def.Pairs {
		if err := util.ValidateDevicePort(p.DevicePort); err != nil {
			return fmt.Errorf("profile %s: %w", def.Name, err)
		}
		if err := util.ValidatePort(p.HostPort); err != nil {
			return fmt.Errorf("profile %s: %w", def.Name, err)
		}
		if seen[p.HostPort] {
			return fmt.Errorf("profile %s repeats host port %d", def.Name, p.HostPort)
		}
		seen[p.HostPort] = true
	}

	fm, err := loadFile()
	if err != nil {
		return err
	}
	if fm.Profiles == nil {
		fm.Profiles = map[string]Definition{}
	}
	fm.Profiles[def.Name] = def
	return saveFile(fm)
}

// Delete removes a profile by name.
func Delete(name string) error {
	fm, err := loadFile()
	if err != nil {
		return err
	}
	if _, ok := fm.Profiles[name]; !ok {
		return fmt.Errorf("profile not found: %s", name)
	}
	delete(fm.Profiles, name)
	return saveFile(fm)
}

// ParsePairs parses CLI pair arguments of the form devicePort:hostPort.
// A devicePort of 0 requests dynamic assignment.
func ParsePairs(args []string) ([]model.PortPair, error) {
	var pairs []model.PortPair
	for _, arg := range args {
		devStr, hostStr, ok := strings.Cut(strings.TrimSpace(arg), ":")
		if !ok {
			return nil, fmt.Errorf("pair %q must be devicePort:hostPort", arg)
		}
		var p model.PortPair
		if _, err := fmt.Sscanf(devStr+" "+hostStr, "%d %d", &p.DevicePort, &p.HostPort); err != nil {
			return nil, fmt.Errorf("pair %q must be numeric: %w", arg, err)
		}
		if err := util.ValidateDevicePort(p.DevicePort); err != nil {
			return nil, err
		}
		if err := util.ValidatePort(p.HostPort); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func loadFile() (fileModel, error) {
	path, err := filePath()
	if err != nil {
		return fileModel{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileModel{Profiles: map[string]Definition{}}, nil
		}
		return fileModel{}, err
	}
	var fm fileModel
	if err := yaml.Unmarshal(b, &fm); err != nil {
		return fileModel{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if fm.Profiles == nil {
		fm.Profiles = map[string]Definition{}
	}
	return fm, nil
}

func saveFile(fm fileModel) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(fm)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
