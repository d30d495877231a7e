package models

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultLocationRadius = 100.0
	MinLocationRadius     = 20.0
	MaxLocationRadius     = 1000.0

	earthRadiusMeters = 6371008.8
)

var coordinatesPattern = regexp.MustCompile(`^-?\d+\.?\d*,-?\d+\.?\d*(,-?\d+\.?\d*)?$`)

// LocationMode selects whether a geofence fires inside or outside its radius.
type LocationMode string

const (
	LocationEnter LocationMode = "enter"
	LocationExit  LocationMode = "exit"
	LocationBoth  LocationMode = "both"
)

// Location is a parsed geofence trigger value.
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
	Radius    float64 // meters, DefaultLocationRadius when the value omits it
	Mode      LocationMode
}

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64
	Longitude float64
}

func (l Location) Center() Point {
	return Point{Latitude: l.Latitude, Longitude: l.Longitude}
}

// Contains reports whether p lies within the geofence radius.
func (l Location) Contains(p Point) bool {
	return Distance(l.Center(), p) <= l.Radius
}

type locationValue struct {
	Coordinates         *string  `json:"coordinates"`
	LocationCoordinates *string  `json:"locationCoordinates"`
	Latitude            *float64 `json:"latitude"`
	Longitude           *float64 `json:"longitude"`
	Radius              *float64 `json:"radius"`
	LocationRadius      *float64 `json:"locationRadius"`
	LocationName        string   `json:"locationName"`
	TriggerOn           string   `json:"triggerOn"`
}

// ParseLocation accepts "lat,lng[,radius]" or a JSON object carrying either a
// coordinates string or latitude/longitude numbers.
func ParseLocation(value string) (Location, error) {
	value = strings.TrimSpace(value)

	if !looksLikeJSONObject(value) {
		return parseCoordinates(value)
	}

	if err := checkSchema(locationSchema, value); err != nil {
		return Location{}, newTriggerError("value", "invalid location format, use 'lat,lng,radius' or JSON format")
	}

	var raw locationValue
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return Location{}, newTriggerError("value", "invalid location JSON")
	}

	mode, err := parseLocationMode(raw.TriggerOn)
	if err != nil {
		return Location{}, err
	}

	coordinates := raw.Coordinates
	if coordinates == nil {
		coordinates = raw.LocationCoordinates
	}

	if coordinates != nil {
		loc, err := parseCoordinates(strings.TrimSpace(*coordinates))
		if err != nil {
			return Location{}, err
		}

		loc.Name = raw.LocationName
		loc.Mode = mode

		return loc, nil
	}

	loc := Location{
		Name:      raw.LocationName,
		Latitude:  *raw.Latitude,
		Longitude: *raw.Longitude,
		Radius:    DefaultLocationRadius,
		Mode:      mode,
	}

	radius := raw.Radius
	if radius == nil {
		radius = raw.LocationRadius
	}

	if radius != nil {
		loc.Radius = *radius
		if err := checkRadius(loc.Radius); err != nil {
			return Location{}, err
		}
	}

	if err := checkLatLng(loc.Latitude, loc.Longitude); err != nil {
		return Location{}, err
	}

	return loc, nil
}

func parseCoordinates(value string) (Location, error) {
	if !coordinatesPattern.MatchString(value) {
		return Location{}, newTriggerError("value", "invalid location format, use 'lat,lng,radius' or JSON format")
	}

	parts := strings.Split(value, ",")

	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Location{}, newTriggerError("value", "invalid latitude")
	}

	lng, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Location{}, newTriggerError("value", "invalid longitude")
	}

	if err := checkLatLng(lat, lng); err != nil {
		return Location{}, err
	}

	loc := Location{Latitude: lat, Longitude: lng, Radius: DefaultLocationRadius, Mode: LocationEnter}

	if len(parts) == 3 {
		radius, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return Location{}, newTriggerError("value", "invalid radius")
		}

		if err := checkRadius(radius); err != nil {
			return Location{}, err
		}

		loc.Radius = radius
	}

	return loc, nil
}

func parseLocationMode(s string) (LocationMode, error) {
	switch LocationMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", LocationEnter, "entry":
		return LocationEnter, nil
	case LocationExit:
		return LocationExit, nil
	case LocationBoth:
		return LocationBoth, nil
	default:
		return "", newTriggerError("value", "triggerOn must be one of enter, exit, both")
	}
}

func checkLatLng(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return newTriggerError("value", "latitude must be between -90 and 90")
	}

	if lng < -180 || lng > 180 {
		return newTriggerError("value", "longitude must be between -180 and 180")
	}

	return nil
}

func checkRadius(radius float64) error {
	if radius < MinLocationRadius || radius > MaxLocationRadius {
		return newTriggerError("value", "radius must be between 20 and 1000 meters")
	}

	return nil
}

// FormatCoordinates renders the "lat,lng,radius" form accepted by ParseLocation.
func FormatCoordinates(lat, lng, radius float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(lng, 'f', -1, 64) + "," +
		strconv.FormatFloat(radius, 'f', -1, 64)
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
