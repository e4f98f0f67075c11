package store

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// snapshot is the on-disk shape of a static configuration-store stand-in.
type snapshot struct {
	PLCs          []PLCConnection `yaml:"plcs"`
	PollingGroups []PollingGroup  `yaml:"polling_groups"`
	Tags          []Tag           `yaml:"tags"`
}

// YAMLStore is a Store backed by a single YAML file loaded once at startup.
// It exists so the core can run end-to-end without the external REST/DB
// config service the real deployment uses.
type YAMLStore struct {
	snap snapshot
}

// LoadYAMLStore reads and parses path into a YAMLStore.
func LoadYAMLStore(path string) (*YAMLStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config store snapshot: %w", err)
	}
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse config store snapshot: %w", err)
	}
	return &YAMLStore{snap: snap}, nil
}

// NewYAMLStoreFromData builds a YAMLStore directly from in-memory YAML
// bytes, used by tests that don't want a temp file.
func NewYAMLStoreFromData(data []byte) (*YAMLStore, error) {
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse config store snapshot: %w", err)
	}
	return &YAMLStore{snap: snap}, nil
}

func (s *YAMLStore) ListPLCConnections() ([]PLCConnection, error) {
	return s.snap.PLCs, nil
}

func (s *YAMLStore) ListPollingGroups() ([]PollingGroup, error) {
	return s.snap.PollingGroups, nil
}

func (s *YAMLStore) ListTags() ([]Tag, error) {
	return s.snap.Tags, nil
}

func (s *YAMLStore) TagsByGroup(groupID string) ([]Tag, error) {
	out := make([]Tag, 0)
	for _, t := range s.snap.Tags {
		if t.PollingGroupID == groupID && t.IsActive {
			out = append(out, t)
		}
	}
	// Stable, deterministic order: tags are sorted by address rather than
	// kept in the snapshot's declared order, so grouping and test output
	// are reproducible.
	sort.Slice(out, func(i, j int) bool { return out[i].TagAddress < out[j].TagAddress })
	return out, nil
}
