package risk

import (
	"math"
	"strings"
)

const earthRadiusKM = 6371.0

// Fallback coordinates for common city names, used when a known location
// has no stored coordinates.
var cityCoordinates = map[string][2]float64{
	"new york":      {40.7128, -74.0060},
	"los angeles":   {34.0522, -118.2437},
	"chicago":       {41.8781, -87.6298},
	"san francisco": {37.7749, -122.4194},
	"seattle":       {47.6062, -122.3321},
	"boston":        {42.3601, -71.0589},
	"miami":         {25.7617, -80.1918},
	"oakland":       {37.8044, -122.2712},
	"san diego":     {32.7157, -117.1611},
	"portland":      {45.5152, -122.6784},
}

// haversineKM returns the great-circle distance between two points in km.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

// cityFallbackCoords resolves a location name against the built-in city
// table, case-insensitively. Names carrying a country suffix such as
// "New York, USA" are retried on the city part alone.
func cityFallbackCoords(name string) (lat, lon float64, ok bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	coords, ok := cityCoordinates[key]
	if !ok {
		if city, _, found := strings.Cut(key, ","); found {
			coords, ok = cityCoordinates[strings.TrimSpace(city)]
		}
	}
	if !ok {
		return 0, 0, false
	}
	return coords[0], coords[1], true
}

// travelVerdict classifies a location change between two transactions.
type travelVerdict int

const (
	travelPlausible travelVerdict = iota
	// travelImpossible means the implied speed exceeds the configured maximum.
	travelImpossible
	// travelSuspect means coordinates could not be resolved but the location
	// changed within a short interval, which earns half credit.
	travelSuspect
)

// classifyTravel compares the current location against the previous one.
// Coordinates resolve from the stored known location first, then from the
// city fallback table.
func classifyTravel(prevName string, prevCoords, currCoords *[2]float64, currName string, elapsedHours, maxSpeedKMH float64) (travelVerdict, float64) {
	if strings.EqualFold(strings.TrimSpace(prevName), strings.TrimSpace(currName)) {
		return travelPlausible, 0
	}

	if prevCoords == nil || currCoords == nil {
		// Unresolvable coordinates: a location change inside one hour is
		// still suspicious, beyond that nobody can tell.
		if elapsedHours < 1.0 {
			return travelSuspect, 0
		}
		return travelPlausible, 0
	}

	distanceKM := haversineKM(prevCoords[0], prevCoords[1], currCoords[0], currCoords[1])
	if distanceKM == 0 {
		return travelPlausible, 0
	}

	if elapsedHours <= 0 {
		return travelImpossible, math.Inf(1)
	}

	speed := distanceKM / elapsedHours
	if speed > maxSpeedKMH {
		return travelImpossible, speed
	}

	return travelPlausible, speed
}
