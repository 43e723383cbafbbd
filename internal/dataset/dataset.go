// Package dataset locates xView2 image/label pairs on disk and chooses which of them to
// render.
package dataset

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Directory names inside a dataset split.
const (
	ImagesDir = "images"
	LabelsDir = "labels"
)

// OutputSuffix is appended to the image stem of rendered files.
const OutputSuffix = "_vis.png"

// ErrNoPairs is returned when a labels directory holds fewer than two label files.
var ErrNoPairs = eris.New("dataset: no label pairs found")

// Layout is the directory structure of one dataset split.
type Layout struct {
	Root   string
	Images string
	Labels string
	Out    string
}

// NewLayout resolves a split directory. A leading "~" in root is expanded and a relative
// out directory is placed inside root. The images and labels directories must exist.
func NewLayout(root, out string) (Layout, error) {
	root, err := expandHome(root)
	if err != nil {
		return Layout{}, err
	}
	if out == "" {
		out = "vis_labels"
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(root, out)
	}

	l := Layout{
		Root:   root,
		Images: filepath.Join(root, ImagesDir),
		Labels: filepath.Join(root, LabelsDir),
		Out:    out,
	}
	for _, dir := range []string{l.Images, l.Labels} {
		fi, err := os.Stat(dir)
		if err != nil {
			return Layout{}, eris.Wrapf(err, "dataset: missing directory %s", dir)
		}
		if !fi.IsDir() {
			return Layout{}, eris.Errorf("dataset: %s is not a directory", dir)
		}
	}
	return l, nil
}

// ListLabels returns the sorted names of the .json files in dir.
func ListLabels(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: list %s", dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Selection controls which label files are rendered.
type Selection struct {
	// Limit is the number of files to take in order, or with Sample the number of
	// pre/post pairs to draw. Zero without Sample means all files.
	Limit int
	// Sample draws Limit random pairs instead of taking the first Limit files.
	Sample bool
	// Seed makes sampling reproducible.
	Seed int64
}

// Select applies sel to a sorted list of label names. Consecutive names (2i, 2i+1) form a
// pre/post disaster pair and sampling keeps pairs together. The result stays in input
// order.
func Select(labels []string, sel Selection) ([]string, error) {
	pairs := len(labels) / 2
	if pairs == 0 {
		return nil, ErrNoPairs
	}

	if !sel.Sample {
		if sel.Limit > 0 && sel.Limit < len(labels) {
			return labels[:sel.Limit], nil
		}
		return labels, nil
	}

	if sel.Limit <= 0 {
		return nil, eris.New("dataset: sampling requires a limit > 0")
	}
	k := min(sel.Limit, pairs)

	rng := rand.New(rand.NewPCG(uint64(sel.Seed), uint64(sel.Seed)^0x9e3779b97f4a7c15))
	picked := rng.Perm(pairs)[:k]

	idx := make([]int, 0, 2*k)
	for _, p := range picked {
		idx = append(idx, 2*p, 2*p+1)
	}
	sort.Ints(idx)

	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out, nil
}

// Pair is a label file with its image and output paths.
type Pair struct {
	Stem   string `json:"stem" yaml:"stem"`
	Label  string `json:"label" yaml:"label"`
	Image  string `json:"image" yaml:"image"`
	Output string `json:"output" yaml:"output"`
}

// Pairs maps label names to their image and output paths. Images are expected at
// images/<stem>.png.
func (l Layout) Pairs(labels []string) []Pair {
	out := make([]Pair, 0, len(labels))
	for _, name := range labels {
		out = append(out, l.Pair(strings.TrimSuffix(name, filepath.Ext(name))))
	}
	return out
}

// Pair returns the paths for one stem.
func (l Layout) Pair(stem string) Pair {
	return Pair{
		Stem:   stem,
		Label:  filepath.Join(l.Labels, stem+".json"),
		Image:  filepath.Join(l.Images, stem+".png"),
		Output: filepath.Join(l.Out, stem+OutputSuffix),
	}
}

// HasImage reports whether the pair's image file exists.
func (p Pair) HasImage() bool {
	fi, err := os.Stat(p.Image)
	return err == nil && !fi.IsDir()
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", eris.Wrap(err, "dataset: resolve home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
