package route

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

// File is the on-disk layout of a route file.
//
//	name: kazhakkoottam
//	waypoints:
//	  - {lat: 8.5333493, lng: 76.8824581}
type File struct {
	Name      string     `yaml:"name"`
	Waypoints []Waypoint `yaml:"waypoints"`
}

func Decode(r io.Reader) (Route, error) {
	var f File
	decoder := yaml.NewDecoder(r)
	decoder.SetStrict(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode route: %w", err)
	}

	rt := Route(f.Waypoints)
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

// Load reads a YAML route file. An empty path yields the built-in route.
func Load(path string) (Route, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open route file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}
