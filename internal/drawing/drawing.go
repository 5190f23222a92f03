// Package drawing models the site-plan objects a session can carry as
// context: raw LINE and POLYLINE geometry grouped by layer.
package drawing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// Object kinds accepted by the service.
const (
	KindLine     = "LINE"
	KindPolyline = "POLYLINE"
)

// Point is an [x, y] coordinate pair in millimetres.
type Point [2]float64

// Object is one drawing entity. LINE objects use Start/End, POLYLINE
// objects use Points/Closed; the unused fields stay empty.
type Object struct {
	Type   string  `json:"type"`
	Layer  string  `json:"layer"`
	Start  *Point  `json:"start,omitempty"`
	End    *Point  `json:"end,omitempty"`
	Points []Point `json:"points,omitempty"`
	Closed bool    `json:"closed,omitempty"`
}

// Validate checks an object against the service's acceptance rules.
func (o Object) Validate() error {
	if strings.TrimSpace(o.Layer) == "" {
		return fmt.Errorf("layer cannot be empty")
	}

	switch o.Type {
	case KindLine:
		if o.Start == nil || o.End == nil {
			return fmt.Errorf("LINE requires start and end points")
		}
		for _, p := range []*Point{o.Start, o.End} {
			if !p.finite() {
				return fmt.Errorf("LINE coordinates must be finite")
			}
		}
	case KindPolyline:
		if len(o.Points) < 2 {
			return fmt.Errorf("POLYLINE requires at least 2 points, got %d", len(o.Points))
		}
		for i, p := range o.Points {
			if !p.finite() {
				return fmt.Errorf("POLYLINE point[%d] must be finite", i)
			}
		}
	default:
		return fmt.Errorf("invalid type %q, must be LINE or POLYLINE", o.Type)
	}

	return nil
}

func (p *Point) finite() bool {
	return !math.IsNaN(p[0]) && !math.IsInf(p[0], 0) &&
		!math.IsNaN(p[1]) && !math.IsInf(p[1], 0)
}

// Decode parses a JSON array of drawing objects and validates each
// one. The index of the first invalid object is included in the error.
func Decode(data []byte) ([]Object, error) {
	var objects []Object
	if err := sonic.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("parse drawing objects: %w", err)
	}

	for i, obj := range objects {
		if err := obj.Validate(); err != nil {
			return nil, fmt.Errorf("object[%d]: %w", i, err)
		}
	}

	return objects, nil
}

// Layers returns the distinct layer names in sorted order.
func Layers(objects []Object) []string {
	seen := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		seen[strings.TrimSpace(obj.Layer)] = struct{}{}
	}

	layers := make([]string, 0, len(seen))
	for layer := range seen {
		layers = append(layers, layer)
	}
	sort.Strings(layers)
	return layers
}
