package route

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Pans and glides interpolate in Web Mercator, the projection map renderers draw in.
var (
	toMercator   = wgs84.EPSG().Transform(4326, 3857)
	fromMercator = wgs84.EPSG().Transform(3857, 4326)
)

// LineString builds a lng/lat line string from the route. A single-waypoint
// route is doubled into a zero-length line, which skips geometry validation.
func (r Route) LineString() (geom.LineString, error) {
	if len(r) == 0 {
		return geom.LineString{}, ErrEmptyRoute
	}

	pts := r
	if len(pts) == 1 {
		pts = Route{r[0], r[0]}
	}

	flat := make([]float64, 0, len(pts)*2)
	for _, w := range pts {
		flat = append(flat, w.Lng, w.Lat)
	}

	seq := geom.NewSequence(flat, geom.DimXY)
	ls, err := geom.NewLineString(seq, geom.DisableAllValidations)
	if err != nil {
		return geom.LineString{}, fmt.Errorf("failed to build route geometry: %w", err)
	}
	return ls, nil
}

func (r Route) GeoJSON() (json.RawMessage, error) {
	ls, err := r.LineString()
	if err != nil {
		return nil, err
	}
	data, err := ls.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode route geometry: %w", err)
	}
	return data, nil
}

// ToMercator projects the waypoint to EPSG:3857 metres.
func (w Waypoint) ToMercator() (x, y float64) {
	x, y, _ = toMercator(w.Lng, w.Lat, 0)
	return x, y
}

func FromMercator(x, y float64) Waypoint {
	lng, lat, _ := fromMercator(x, y, 0)
	return Waypoint{Lat: lat, Lng: lng}
}

// Lerp interpolates between a and b in Web Mercator. t is clamped to [0, 1]
// and the end points are returned exactly.
func Lerp(a, b Waypoint, t float64) Waypoint {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	ax, ay := a.ToMercator()
	bx, by := b.ToMercator()
	return FromMercator(ax+(bx-ax)*t, ay+(by-ay)*t)
}
