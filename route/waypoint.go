package route

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyRoute is returned when a route has no waypoints.
	ErrEmptyRoute = errors.New("route has no waypoints")

	// ErrInvalidWaypoint is returned when a coordinate is not finite or out of range.
	ErrInvalidWaypoint = errors.New("invalid waypoint")
)

// Waypoint is a single fixed geographic coordinate.
type Waypoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// LngLat returns the coordinate in the [lng, lat] order map renderers expect.
func (w Waypoint) LngLat() [2]float64 {
	return [2]float64{w.Lng, w.Lat}
}

// Validate checks that both components are finite and inside WGS84 bounds.
func (w Waypoint) Validate() error {
	if math.IsNaN(w.Lat) || math.IsInf(w.Lat, 0) || math.IsNaN(w.Lng) || math.IsInf(w.Lng, 0) {
		return fmt.Errorf("%w: non-finite coordinate %v,%v", ErrInvalidWaypoint, w.Lat, w.Lng)
	}
	if w.Lat < -90 || w.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidWaypoint, w.Lat)
	}
	if w.Lng < -180 || w.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidWaypoint, w.Lng)
	}
	return nil
}

func (w Waypoint) String() string {
	return fmt.Sprintf("%.7f,%.7f", w.Lat, w.Lng)
}

// Route is an ordered, fixed sequence of waypoints.
type Route []Waypoint

// Validate checks the route is non-empty and every waypoint is valid.
func (r Route) Validate() error {
	if len(r) == 0 {
		return ErrEmptyRoute
	}
	for i, w := range r {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
	}
	return nil
}

func (r Route) First() Waypoint {
	return r[0]
}

func (r Route) Last() Waypoint {
	return r[len(r)-1]
}

func (r Route) Clone() Route {
	out := make(Route, len(r))
	copy(out, r)
	return out
}

func Default() Route {
	return Route{
		{Lat: 8.5333493, Lng: 76.8824581},
		{Lat: 8.5320122, Lng: 76.8833443},
		{Lat: 8.5313615, Lng: 76.8839826},
		{Lat: 8.5303163, Lng: 76.884987},
		{Lat: 8.5301181, Lng: 76.8851691},
		{Lat: 8.5300311, Lng: 76.8852647},
		{Lat: 8.5298078, Lng: 76.8854618},
		{Lat: 8.5296006, Lng: 76.8856596},
		{Lat: 8.5294755, Lng: 76.8859054},
		{Lat: 8.5295279, Lng: 76.8861407},
		{Lat: 8.5295322, Lng: 76.8863562},
		{Lat: 8.529521, Lng: 76.8865022},
		{Lat: 8.5295036, Lng: 76.8867225},
		{Lat: 8.5294964, Lng: 76.8869452},
		{Lat: 8.5294927, Lng: 76.8871547},
		{Lat: 8.5294953, Lng: 76.8873584},
		{Lat: 8.5294975, Lng: 76.887519},
		{Lat: 8.5294892, Lng: 76.8877506},
		{Lat: 8.5294635, Lng: 76.8879753},
		{Lat: 8.5294404, Lng: 76.8881771},
		{Lat: 8.5295538, Lng: 76.8883683},
		{Lat: 8.5297606, Lng: 76.8885872},
		{Lat: 8.5299334, Lng: 76.888767},
		{Lat: 8.5300564, Lng: 76.8888893},
		{Lat: 8.5302106, Lng: 76.8890336},
		{Lat: 8.5304158, Lng: 76.8892233},
		{Lat: 8.5309131, Lng: 76.8896487},
		{Lat: 8.53121, Lng: 76.8898691},
		{Lat: 8.5315965, Lng: 76.8900913},
		{Lat: 8.5320215, Lng: 76.8902969},
		{Lat: 8.5323169, Lng: 76.890448},
	}
}
