package drawing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	start, end := Point{0, 0}, Point{5000, 0}

	tests := []struct {
		name    string
		obj     Object
		wantErr string
	}{
		{
			name: "valid line",
			obj:  Object{Type: KindLine, Layer: "WALLS", Start: &start, End: &end},
		},
		{
			name: "valid closed polyline",
			obj: Object{
				Type:   KindPolyline,
				Layer:  "PLOT_BOUNDARY",
				Points: []Point{{0, 0}, {10000, 0}, {10000, 8000}, {0, 8000}},
				Closed: true,
			},
		},
		{
			name:    "blank layer",
			obj:     Object{Type: KindLine, Layer: "   ", Start: &start, End: &end},
			wantErr: "layer cannot be empty",
		},
		{
			name:    "line missing end",
			obj:     Object{Type: KindLine, Layer: "WALLS", Start: &start},
			wantErr: "requires start and end",
		},
		{
			name:    "polyline too short",
			obj:     Object{Type: KindPolyline, Layer: "WALLS", Points: []Point{{0, 0}}},
			wantErr: "at least 2 points",
		},
		{
			name:    "unknown type",
			obj:     Object{Type: "ARC", Layer: "WALLS"},
			wantErr: "invalid type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.obj.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("parses a mixed set", func(t *testing.T) {
		data := []byte(`[
			{"type":"LINE","layer":"WALLS","start":[0,0],"end":[5000,0]},
			{"type":"POLYLINE","layer":"PLOT_BOUNDARY","points":[[0,0],[10000,0],[10000,8000]],"closed":true}
		]`)

		objects, err := Decode(data)
		require.NoError(t, err)
		require.Len(t, objects, 2)
		assert.Equal(t, KindLine, objects[0].Type)
		assert.Equal(t, Point{5000, 0}, *objects[0].End)
		assert.True(t, objects[1].Closed)
	})

	t.Run("reports the failing index", func(t *testing.T) {
		data := []byte(`[
			{"type":"LINE","layer":"WALLS","start":[0,0],"end":[5000,0]},
			{"type":"ARC","layer":"WALLS"}
		]`)

		_, err := Decode(data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "object[1]")
	})

	t.Run("rejects non-array input", func(t *testing.T) {
		_, err := Decode([]byte(`{"type":"LINE"}`))
		require.Error(t, err)
	})
}

func TestLayers(t *testing.T) {
	start, end := Point{0, 0}, Point{1, 1}
	objects := []Object{
		{Type: KindLine, Layer: "WALLS", Start: &start, End: &end},
		{Type: KindLine, Layer: "ROOF", Start: &start, End: &end},
		{Type: KindLine, Layer: "WALLS ", Start: &start, End: &end},
	}

	assert.Equal(t, []string{"ROOF", "WALLS"}, Layers(objects))
}
