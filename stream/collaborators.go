package stream

import (
	"time"

	"github.com/matt-g-everett/bustx/route"
)

// PanOptions controls a camera move. A zero Duration leaves the transition to
// the renderer and a zero Zoom keeps the current zoom.
type PanOptions struct {
	Duration  time.Duration
	Essential bool
	Zoom      float64
}

// NavigationControl is the zoom/compass overlay added to a view.
type NavigationControl struct {
	VisualizePitch bool `json:"visualizePitch"`
	ShowCompass    bool `json:"showCompass"`
}

// MarkerStyle describes how a marker is drawn. Icon markers are drawn as a
// round image of Size pixels, otherwise a pin in Colour. A non-empty
// VehicleID mirrors the marker's moves as vehicle positions.
type MarkerStyle struct {
	Icon      string
	Size      int
	Colour    string
	VehicleID string
}

// View is a map surface showing the route, markers and controls.
type View interface {
	PanTo(wp route.Waypoint, opts PanOptions)
	AddControl(control NavigationControl, placement string)
	OnReady(fn func())
	Destroy()
}

// Marker is a pin bound to a coordinate on a View.
type Marker interface {
	SetPosition(wp route.Waypoint)
	AttachTo(v View)
}

type MapFactory interface {
	CreateView(container string, center route.Waypoint, zoom float64, style string) (View, error)
	CreateMarker(style MarkerStyle) (Marker, error)
}
