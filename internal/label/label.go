// Package label reads xView2 label documents.
package label

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/damage-vis/internal/overlay"
	"github.com/sells-group/damage-vis/internal/wkt"
)

// ErrMalformed is returned for documents that are not valid JSON.
var ErrMalformed = eris.New("label: malformed document")

// Feature is one labeled building footprint in pixel coordinates.
type Feature struct {
	UID         string           `json:"uid,omitempty" yaml:"uid,omitempty"`
	FeatureType string           `json:"feature_type,omitempty" yaml:"feature_type,omitempty"`
	Category    overlay.Category `json:"subtype" yaml:"subtype"`
	WKT         string           `json:"wkt" yaml:"wkt"`
}

// Metadata holds the image-level fields of a label document. Missing fields are zero.
type Metadata struct {
	ImageName    string `json:"img_name,omitempty" yaml:"img_name,omitempty"`
	Width        int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height       int    `json:"height,omitempty" yaml:"height,omitempty"`
	Disaster     string `json:"disaster,omitempty" yaml:"disaster,omitempty"`
	DisasterType string `json:"disaster_type,omitempty" yaml:"disaster_type,omitempty"`
}

// Record is a decoded label document.
type Record struct {
	Metadata Metadata  `json:"metadata" yaml:"metadata"`
	Features []Feature `json:"features" yaml:"features"`
}

// Decode parses a label document. Features are read from features.xy; when that path is
// absent or not an array the record has no features.
func Decode(data []byte) (*Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformed
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, ErrMalformed
	}

	md := doc.Get("metadata")
	rec := &Record{
		Metadata: Metadata{
			ImageName:    md.Get("img_name").String(),
			Width:        int(md.Get("width").Int()),
			Height:       int(md.Get("height").Int()),
			Disaster:     md.Get("disaster").String(),
			DisasterType: md.Get("disaster_type").String(),
		},
	}

	xy := doc.Get("features.xy")
	if !xy.IsArray() {
		return rec, nil
	}

	xy.ForEach(func(_, feat gjson.Result) bool {
		if !feat.IsObject() {
			return true
		}
		props := feat.Get("properties")
		rec.Features = append(rec.Features, Feature{
			UID:         props.Get("uid").String(),
			FeatureType: props.Get("feature_type").String(),
			Category:    overlay.ParseCategory(props.Get("subtype").String()),
			WKT:         feat.Get("wkt").String(),
		})
		return true
	})

	return rec, nil
}

// Load reads and decodes the label document at path.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "label: read %s", path)
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, eris.Wrapf(err, "label: decode %s", path)
	}
	return rec, nil
}

// Geometries parses every feature's WKT. The first malformed geometry aborts with an
// error naming the feature.
func (r *Record) Geometries() ([]overlay.LabeledGeometry, error) {
	out := make([]overlay.LabeledGeometry, 0, len(r.Features))
	for i, f := range r.Features {
		rings, err := wkt.Parse(f.WKT)
		if err != nil {
			return nil, eris.Wrapf(err, "label: feature %d (%s)", i, f.UID)
		}
		out = append(out, overlay.LabeledGeometry{Category: f.Category, Rings: rings})
	}
	return out, nil
}

// CategoryCounts returns the number of features per category.
func (r *Record) CategoryCounts() map[overlay.Category]int {
	counts := make(map[overlay.Category]int)
	for _, f := range r.Features {
		counts[f.Category]++
	}
	return counts
}
