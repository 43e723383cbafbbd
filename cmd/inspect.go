package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/damage-vis/internal/label"
	"github.com/sells-group/damage-vis/internal/overlay"
	"github.com/sells-group/damage-vis/internal/wkt"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <label.json>",
	Short: "Print the features of a label file as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := label.Load(args[0])
		if err != nil {
			return err
		}
		report, err := inspectRecord(rec)
		if err != nil {
			return err
		}
		return writeYAML(os.Stdout, report)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

type inspectFeature struct {
	UID      string           `yaml:"uid,omitempty"`
	Category overlay.Category `yaml:"category"`
	Known    bool             `yaml:"known_category"`
	Rings    int              `yaml:"rings"`
	Points   []int            `yaml:"points,omitempty"`
	Area     float64          `yaml:"area"`
}

type inspectReport struct {
	Metadata   label.Metadata           `yaml:"metadata"`
	Features   []inspectFeature         `yaml:"features"`
	Categories map[overlay.Category]int `yaml:"categories"`
	Drawable   int                      `yaml:"drawable_rings"`
	Skipped    int                      `yaml:"skipped_rings"`
}

// inspectRecord summarises the geometry of every feature in rec.
func inspectRecord(rec *label.Record) (*inspectReport, error) {
	geoms, err := rec.Geometries()
	if err != nil {
		return nil, err
	}

	report := &inspectReport{
		Metadata:   rec.Metadata,
		Features:   make([]inspectFeature, 0, len(geoms)),
		Categories: rec.CategoryCounts(),
	}
	report.Drawable, report.Skipped = overlay.CountDrawable(geoms)

	for i, g := range geoms {
		f := inspectFeature{
			UID:      rec.Features[i].UID,
			Category: g.Category,
			Known:    g.Category.Known(),
			Rings:    len(g.Rings),
		}
		for _, r := range g.Rings {
			f.Points = append(f.Points, len(r))
			f.Area += wkt.Area(r)
		}
		report.Features = append(report.Features, f)
	}
	return report, nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return eris.Wrap(enc.Close(), "encode yaml")
}
