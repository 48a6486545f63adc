package stream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/matt-g-everett/bustx/route"
	"google.golang.org/protobuf/proto"
)

// Command types understood by the renderer.
const (
	CmdCreateView   = "create_view"
	CmdAddControl   = "add_control"
	CmdCreateMarker = "create_marker"
	CmdSetPosition  = "set_position"
	CmdAttachMarker = "attach_marker"
	CmdPanTo        = "pan_to"
	CmdRoute        = "route"
	CmdDestroyView  = "destroy_view"
)

// Command is one render instruction published to the renderer.
// Positions are [lng, lat].
type Command struct {
	Type       string             `json:"type"`
	View       string             `json:"view,omitempty"`
	Marker     string             `json:"marker,omitempty"`
	Container  string             `json:"container,omitempty"`
	Style      string             `json:"style,omitempty"`
	Position   *[2]float64        `json:"position,omitempty"`
	Zoom       *float64           `json:"zoom,omitempty"`
	DurationMs *int64             `json:"durationMs,omitempty"`
	Essential  bool               `json:"essential,omitempty"`
	Icon       string             `json:"icon,omitempty"`
	Size       int                `json:"size,omitempty"`
	Colour     string             `json:"colour,omitempty"`
	Control    *NavigationControl `json:"control,omitempty"`
	Placement  string             `json:"placement,omitempty"`
	Geometry   json.RawMessage    `json:"geometry,omitempty"`
	SentAt     int64              `json:"sentAt"`
}

// ReadyMessage is published by the renderer once a view has loaded.
// An empty View means every view.
type ReadyMessage struct {
	View string `json:"view"`
}

func position(wp route.Waypoint) *[2]float64 {
	p := wp.LngLat()
	return &p
}

func zoomLevel(z float64) *float64 {
	return &z
}

func millis(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

// MarshalCommand encodes cmd, stamping SentAt when it is unset.
func MarshalCommand(cmd Command, now time.Time) ([]byte, error) {
	if cmd.SentAt == 0 {
		cmd.SentAt = now.UnixMilli()
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s command: %w", cmd.Type, err)
	}
	return data, nil
}

// UnmarshalCommand decodes a command published by MarshalCommand.
func UnmarshalCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("failed to decode command: %w", err)
	}
	if cmd.Type == "" {
		return Command{}, fmt.Errorf("failed to decode command: missing type")
	}
	return cmd, nil
}

// SignStyleURL points the style at the API host and appends the api_key
// query parameter the tile server expects.
func SignStyleURL(style, apiKey string) string {
	style = strings.ReplaceAll(style, "app.olamaps.io", "api.olamaps.io")
	if apiKey == "" {
		return style
	}
	if strings.Contains(style, "?") {
		return style + "&api_key=" + apiKey
	}
	return style + "?api_key=" + apiKey
}

// VehiclePositionFeed encodes a GTFS-Realtime feed holding a single vehicle
// position.
func VehiclePositionFeed(vehicleID string, wp route.Waypoint, at time.Time) ([]byte, error) {
	ts := uint64(at.Unix())
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(ts),
		},
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String(vehicleID),
				Vehicle: &gtfs.VehiclePosition{
					Vehicle: &gtfs.VehicleDescriptor{
						Id: proto.String(vehicleID),
					},
					Position: &gtfs.Position{
						Latitude:  proto.Float32(float32(wp.Lat)),
						Longitude: proto.Float32(float32(wp.Lng)),
					},
					Timestamp: proto.Uint64(ts),
				},
			},
		},
	}

	data, err := proto.Marshal(feed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vehicle position: %w", err)
	}
	return data, nil
}
