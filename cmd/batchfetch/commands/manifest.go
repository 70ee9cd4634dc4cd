package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/cache"
	"github.com/Sternrassler/batch-fetcher/pkg/fetch"
	"gopkg.in/yaml.v3"
)

// Manifest is a YAML description of one batch.
type Manifest struct {
	Name        string       `yaml:"name"`
	Slot        string       `yaml:"slot,omitempty"`
	Policy      cache.Policy `yaml:"policy,omitempty"`
	DownloadDir string       `yaml:"download_dir,omitempty"`
	MaxParallel int          `yaml:"max_parallel,omitempty"`
	Timeout     string       `yaml:"timeout,omitempty"`
	Tasks       []fetch.Task `yaml:"tasks"`
}

// LoadManifest reads and checks a manifest file. The name defaults to path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = path
	}
	for i, t := range m.Tasks {
		if t.ID == "" || t.URL == "" {
			return nil, fmt.Errorf("manifest %s: task %d needs id and url", path, i)
		}
	}
	return &m, nil
}

// Apply overlays the manifest's settings on base.
func (m *Manifest) Apply(base fetch.BatchConfig) (fetch.BatchConfig, error) {
	cfg := base
	if m.Slot != "" {
		cfg.SlotName = m.Slot
	}
	if m.Policy != "" {
		cfg.CachePolicy = m.Policy
	}
	if m.DownloadDir != "" {
		cfg.DownloadDir = m.DownloadDir
	}
	if m.MaxParallel != 0 {
		cfg.MaxParallel = m.MaxParallel
	}
	if m.Timeout != "" {
		d, err := time.ParseDuration(m.Timeout)
		if err != nil {
			return cfg, fmt.Errorf("manifest %s: timeout: %w", m.Name, err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// parseURLFlags turns id=url pairs into an ad-hoc manifest.
func parseURLFlags(pairs []string) (*Manifest, error) {
	m := &Manifest{Name: "command-line"}
	for _, pair := range pairs {
		id, url, ok := strings.Cut(pair, "=")
		if !ok || id == "" || url == "" {
			return nil, fmt.Errorf("invalid --url %q, want id=url", pair)
		}
		m.Tasks = append(m.Tasks, fetch.Task{ID: fetch.TaskID(id), URL: url})
	}
	return m, nil
}
