// Package netpath models repository network paths: the identifiers of
// a repository's shared object/ref namespace within the sharded
// storage tree.
package netpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape distinguishes the three on-disk repository layouts. All three
// share one sharded tree but nest at different points.
type Shape int

const (
	// ShapePlain is a single-repository network:
	// <p1>/<p2>/<p3>/<netID>
	ShapePlain Shape = iota
	// ShapeGist is a gist repository embedded in the sharded tree:
	// <p1>/<p2>/<p3>/gist/<netID>
	ShapeGist
	// ShapeNetwork is a forked repository group sharing one network
	// directory: <p1>/nw/<p2>/<p3>/<netID>
	ShapeNetwork
)

// Shapes lists all supported shapes, in a stable order.
var Shapes = []Shape{ShapePlain, ShapeGist, ShapeNetwork}

func (s Shape) String() string {
	switch s {
	case ShapePlain:
		return "plain"
	case ShapeGist:
		return "gist"
	case ShapeNetwork:
		return "network"
	}
	return "invalid"
}

// NetworkPath identifies one network relative to the repositories
// root. The final path segment is the numeric network ID.
type NetworkPath string

// Parse validates s as a network path.
func Parse(s string) (NetworkPath, error) {
	p := NetworkPath(strings.Trim(s, "/"))
	if _, ok := p.shape(); !ok {
		return "", fmt.Errorf("malformed network path %q", s)
	}
	return p, nil
}

// Shape reports the repository shape the path belongs to. Calling
// Shape on a path that did not come from Parse or ScanTree is a
// programming error; malformed paths report ShapePlain.
func (p NetworkPath) Shape() Shape {
	shape, _ := p.shape()
	return shape
}

func (p NetworkPath) shape() (Shape, bool) {
	segments := strings.Split(string(p), "/")

	last := segments[len(segments)-1]
	if last == "" {
		return ShapePlain, false
	}
	if _, err := strconv.ParseUint(last, 10, 64); err != nil {
		return ShapePlain, false
	}
	for _, segment := range segments[:len(segments)-1] {
		if segment == "" {
			return ShapePlain, false
		}
	}

	switch {
	case len(segments) == 4:
		return ShapePlain, true
	case len(segments) == 5 && segments[1] == "nw":
		return ShapeNetwork, true
	case len(segments) == 5 && segments[3] == "gist":
		return ShapeGist, true
	}
	return ShapePlain, false
}

// NetworkID returns the numeric network ID encoded in the final path
// segment.
func (p NetworkPath) NetworkID() (uint64, error) {
	segments := strings.Split(string(p), "/")
	id, err := strconv.ParseUint(segments[len(segments)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("network path %q has no numeric ID: %w", p, err)
	}
	return id, nil
}

func (p NetworkPath) String() string { return string(p) }
