// Package wkt parses the POLYGON / MULTIPOLYGON subset of Well-Known Text used by
// xView2 label files into flat lists of rings.
package wkt

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Point is a vertex in image pixel space.
type Point struct {
	X float64
	Y float64
}

// Ring is a closed boundary. The closing edge from the last point back to the first is
// implied and the first point need not be repeated.
type Ring []Point

// Keywords recognised at the start of a geometry string.
const (
	KeywordPolygon      = "POLYGON"
	KeywordMultiPolygon = "MULTIPOLYGON"
)

var (
	// "), (" between rings of one polygon, tolerant of spacing.
	ringSep = regexp.MustCompile(`\)\s*,\s*\(`)
	// ")), ((" between polygons of a multipolygon.
	polygonSep = regexp.MustCompile(`\)\s*\)\s*,\s*\(\s*\(`)
)

// FormatError reports geometry text that cannot be decoded.
type FormatError struct {
	Token  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Token == "" {
		return "wkt: " + e.Reason
	}
	return "wkt: " + e.Reason + ": " + strconv.Quote(e.Token)
}

// Parse decodes a POLYGON or MULTIPOLYGON string into its rings. Holes and the members of
// a multipolygon are flattened into one list in input order.
//
// Empty text yields no rings. Text starting with any other keyword also yields no rings
// and no error. Malformed coordinates are an error.
func Parse(text string) ([]Ring, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, nil
	}
	upper := strings.ToUpper(s)

	switch {
	case strings.HasPrefix(upper, KeywordMultiPolygon):
		if isEmpty(upper, KeywordMultiPolygon) {
			return nil, nil
		}
		body, err := between(s, "(((", ")))")
		if err != nil {
			return nil, eris.Wrap(err, "wkt: multipolygon")
		}
		var rings []Ring
		for i, poly := range polygonSep.Split(body, -1) {
			rs, err := parseRings(poly)
			if err != nil {
				return nil, eris.Wrapf(err, "wkt: multipolygon member %d", i)
			}
			rings = append(rings, rs...)
		}
		return rings, nil

	case strings.HasPrefix(upper, KeywordPolygon):
		if isEmpty(upper, KeywordPolygon) {
			return nil, nil
		}
		body, err := between(s, "((", "))")
		if err != nil {
			return nil, eris.Wrap(err, "wkt: polygon")
		}
		rings, err := parseRings(body)
		if err != nil {
			return nil, eris.Wrap(err, "wkt: polygon")
		}
		return rings, nil
	}

	return nil, nil
}

// ParseRing decodes a comma separated "x y" coordinate list. Empty tokens are skipped;
// fields past the second (z, m) are ignored. NaN and infinite values are rejected.
func ParseRing(text string) (Ring, error) {
	var ring Ring
	for _, tok := range strings.Split(text, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		fields := strings.Fields(tok)
		if len(fields) < 2 {
			return nil, &FormatError{Token: tok, Reason: "coordinate needs x and y"}
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, &FormatError{Token: tok, Reason: "invalid x"}
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, &FormatError{Token: tok, Reason: "invalid y"}
		}
		if !finite(x) || !finite(y) {
			return nil, &FormatError{Token: tok, Reason: "non-finite coordinate"}
		}
		ring = append(ring, Point{X: x, Y: y})
	}
	return ring, nil
}

func parseRings(body string) ([]Ring, error) {
	parts := ringSep.Split(body, -1)
	rings := make([]Ring, 0, len(parts))
	for i, part := range parts {
		ring, err := ParseRing(part)
		if err != nil {
			return nil, eris.Wrapf(err, "ring %d", i)
		}
		rings = append(rings, ring)
	}
	return rings, nil
}

// between returns the text after the first open and before the last close delimiter.
func between(s, open, close string) (string, error) {
	i := strings.Index(s, open)
	j := strings.LastIndex(s, close)
	if i < 0 || j < i+len(open) {
		return "", &FormatError{Token: s, Reason: "missing " + open + " ... " + close}
	}
	return s[i+len(open) : j], nil
}

// isEmpty reports "<KEYWORD> EMPTY".
func isEmpty(upper, keyword string) bool {
	return strings.TrimSpace(strings.TrimPrefix(upper, keyword)) == "EMPTY"
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
