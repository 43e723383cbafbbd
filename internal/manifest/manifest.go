// Package manifest writes the YAML summary of a render batch next to its outputs.
package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/damage-vis/internal/overlay"
)

// DefaultName is the manifest file name inside the output directory.
const DefaultName = "manifest.yaml"

// Settings records the options a batch ran with.
type Settings struct {
	Root      string `yaml:"root"`
	Out       string `yaml:"out"`
	LineWidth int    `yaml:"line_width"`
	Limit     int    `yaml:"limit"`
	Sample    bool   `yaml:"sample"`
	Seed      int64  `yaml:"seed"`
	Workers   int    `yaml:"workers"`
}

// Item is the outcome of one label file.
type Item struct {
	Stem         string `yaml:"stem"`
	Output       string `yaml:"output,omitempty"`
	Status       string `yaml:"status"`
	Features     int    `yaml:"features"`
	DrawnRings   int    `yaml:"drawn_rings"`
	SkippedRings int    `yaml:"skipped_rings"`
	Error        string `yaml:"error,omitempty"`
}

// Totals summarises a batch.
type Totals struct {
	Rendered     int                      `yaml:"rendered"`
	Missing      int                      `yaml:"missing"`
	Failed       int                      `yaml:"failed"`
	SkippedRings int                      `yaml:"skipped_rings"`
	Categories   map[overlay.Category]int `yaml:"categories"`
}

// Manifest is the document written after a batch.
type Manifest struct {
	RunID      string    `yaml:"run_id,omitempty"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	Settings   Settings  `yaml:"settings"`
	Totals     Totals    `yaml:"totals"`
	Items      []Item    `yaml:"items"`
}

// Builder collects items from concurrent workers.
type Builder struct {
	mu sync.Mutex
	m  Manifest
}

// NewBuilder starts a manifest for a batch.
func NewBuilder(runID string, settings Settings) *Builder {
	return &Builder{m: Manifest{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Settings:  settings,
		Totals:    Totals{Categories: make(map[overlay.Category]int)},
	}}
}

// Add records one item and the category counts of its features. Safe for concurrent use.
func (b *Builder) Add(item Item, categories map[overlay.Category]int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.m.Items = append(b.m.Items, item)
	switch item.Status {
	case "ok":
		b.m.Totals.Rendered++
	case "missing":
		b.m.Totals.Missing++
	default:
		b.m.Totals.Failed++
	}
	b.m.Totals.SkippedRings += item.SkippedRings
	for c, n := range categories {
		b.m.Totals.Categories[c] += n
	}
}

// Build finalises the manifest with items in stem order.
func (b *Builder) Build() Manifest {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.m
	m.FinishedAt = time.Now().UTC()
	m.Items = append([]Item(nil), b.m.Items...)
	sort.Slice(m.Items, func(i, j int) bool { return m.Items[i].Stem < m.Items[j].Stem })
	cats := make(map[overlay.Category]int, len(b.m.Totals.Categories))
	for c, n := range b.m.Totals.Categories {
		cats[c] = n
	}
	m.Totals.Categories = cats
	return m
}

// Write encodes m as YAML to path, creating parent directories.
func Write(path string, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "manifest: mkdir %s", filepath.Dir(path))
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "manifest: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "manifest: write %s", path)
	}
	return nil
}

// Read loads a manifest written by Write.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "manifest: parse %s", path)
	}
	return &m, nil
}
