package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineSymmetry(t *testing.T) {
	ny := cityCoordinates["new york"]
	la := cityCoordinates["los angeles"]

	ab := haversineKM(ny[0], ny[1], la[0], la[1])
	ba := haversineKM(la[0], la[1], ny[0], ny[1])

	assert.InDelta(t, ab, ba, 1e-9)
	// New York to Los Angeles is roughly 3,940 km.
	assert.InDelta(t, 3940, ab, 50)
}

func TestHaversineZeroDistance(t *testing.T) {
	ny := cityCoordinates["new york"]
	assert.Zero(t, haversineKM(ny[0], ny[1], ny[0], ny[1]))
}

func TestCityFallbackCoordsCaseInsensitive(t *testing.T) {
	lat, lon, ok := cityFallbackCoords("  New York ")
	assert.True(t, ok)
	assert.InDelta(t, 40.7128, lat, 1e-6)
	assert.InDelta(t, -74.0060, lon, 1e-6)

	_, _, ok = cityFallbackCoords("atlantis")
	assert.False(t, ok)
}

func TestCityFallbackCoordsStripsCountrySuffix(t *testing.T) {
	lat, lon, ok := cityFallbackCoords("New York, USA")
	assert.True(t, ok)
	assert.InDelta(t, 40.7128, lat, 1e-6)
	assert.InDelta(t, -74.0060, lon, 1e-6)

	lat, lon, ok = cityFallbackCoords("Chicago, USA")
	assert.True(t, ok)
	assert.InDelta(t, cityCoordinates["chicago"][0], lat, 1e-6)
	assert.InDelta(t, cityCoordinates["chicago"][1], lon, 1e-6)

	_, _, ok = cityFallbackCoords("Atlantis, Nowhere")
	assert.False(t, ok)
}

func TestClassifyTravel(t *testing.T) {
	ny := cityCoordinates["new york"]
	la := cityCoordinates["los angeles"]

	tests := []struct {
		name         string
		prevName     string
		prevCoords   *[2]float64
		currName     string
		currCoords   *[2]float64
		elapsedHours float64
		want         travelVerdict
	}{
		{
			name:     "same location is always plausible",
			prevName: "New York", currName: "new york",
			prevCoords: &ny, currCoords: &ny,
			elapsedHours: 0.01,
			want:         travelPlausible,
		},
		{
			name:     "cross country in one hour is impossible",
			prevName: "New York", currName: "Los Angeles",
			prevCoords: &ny, currCoords: &la,
			elapsedHours: 1.0,
			want:         travelImpossible,
		},
		{
			name:     "cross country in six hours is plausible",
			prevName: "New York", currName: "Los Angeles",
			prevCoords: &ny, currCoords: &la,
			elapsedHours: 6.0,
			want:         travelPlausible,
		},
		{
			name:     "unresolvable change inside an hour is suspect",
			prevName: "Springfield", currName: "Shelbyville",
			elapsedHours: 0.5,
			want:         travelSuspect,
		},
		{
			name:     "unresolvable change after an hour is plausible",
			prevName: "Springfield", currName: "Shelbyville",
			elapsedHours: 2.0,
			want:         travelPlausible,
		},
		{
			name:     "zero elapsed with distance is impossible",
			prevName: "New York", currName: "Los Angeles",
			prevCoords: &ny, currCoords: &la,
			elapsedHours: 0,
			want:         travelImpossible,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, speed := classifyTravel(tt.prevName, tt.prevCoords, tt.currCoords, tt.currName, tt.elapsedHours, 900)
			assert.Equal(t, tt.want, verdict)
			if tt.want == travelImpossible && tt.elapsedHours > 0 {
				assert.Greater(t, speed, 900.0)
			}
			if tt.elapsedHours == 0 && tt.want == travelImpossible {
				assert.True(t, math.IsInf(speed, 1))
			}
		})
	}
}
