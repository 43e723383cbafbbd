package overlay

import (
	"image/color"

	"golang.org/x/text/cases"
)

// Category is an xView2 damage subtype.
type Category string

// Damage subtypes present in xView2 labels.
const (
	Destroyed    Category = "destroyed"
	MajorDamage  Category = "major-damage"
	MinorDamage  Category = "minor-damage"
	NoDamage     Category = "no-damage"
	Unclassified Category = "un-classified"
)

// Categories lists the known subtypes in severity order.
var Categories = []Category{Destroyed, MajorDamage, MinorDamage, NoDamage, Unclassified}

// foldCase builds a Caser per call since Casers are not safe for concurrent use.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// ParseCategory normalises a label subtype. Empty input is un-classified; any other
// unknown value is kept (case folded) so that it resolves to the default style.
func ParseCategory(s string) Category {
	if s == "" {
		return Unclassified
	}
	return Category(foldCase(s))
}

// Known reports whether c is one of the xView2 subtypes.
func (c Category) Known() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Style is the outline and fill colour for one category.
type Style struct {
	Outline color.NRGBA
	Fill    color.NRGBA
}

// DefaultStyle is used for categories missing from a StyleTable.
var DefaultStyle = Style{
	Outline: color.NRGBA{R: 255, G: 255, B: 255, A: 255},
	Fill:    color.NRGBA{R: 255, G: 255, B: 255, A: 60},
}

// StyleTable maps categories to styles. It is immutable once built.
type StyleTable struct {
	styles   map[Category]Style
	fallback Style
}

// NewStyleTable copies styles into a new table. Keys are case folded.
func NewStyleTable(styles map[Category]Style, fallback Style) StyleTable {
	m := make(map[Category]Style, len(styles))
	for c, s := range styles {
		m[Category(foldCase(string(c)))] = s
	}
	return StyleTable{styles: m, fallback: fallback}
}

// DefaultStyles returns the xView2 palette: red, orange, yellow, green and cyan from most
// to least severe, white for anything else.
func DefaultStyles() StyleTable {
	return NewStyleTable(map[Category]Style{
		Destroyed: {
			Outline: color.NRGBA{R: 255, G: 0, B: 0, A: 255},
			Fill:    color.NRGBA{R: 255, G: 0, B: 0, A: 80},
		},
		MajorDamage: {
			Outline: color.NRGBA{R: 255, G: 165, B: 0, A: 255},
			Fill:    color.NRGBA{R: 255, G: 165, B: 0, A: 80},
		},
		MinorDamage: {
			Outline: color.NRGBA{R: 255, G: 255, B: 0, A: 255},
			Fill:    color.NRGBA{R: 255, G: 255, B: 0, A: 80},
		},
		NoDamage: {
			Outline: color.NRGBA{R: 0, G: 255, B: 0, A: 255},
			Fill:    color.NRGBA{R: 0, G: 255, B: 0, A: 70},
		},
		Unclassified: {
			Outline: color.NRGBA{R: 0, G: 200, B: 255, A: 255},
			Fill:    color.NRGBA{R: 0, G: 200, B: 255, A: 70},
		},
	}, DefaultStyle)
}

// Lookup returns the style for a category, matching case-insensitively. An empty
// category is treated as un-classified.
func (t StyleTable) Lookup(c Category) Style {
	if s, ok := t.styles[ParseCategory(string(c))]; ok {
		return s
	}
	return t.fallback
}
