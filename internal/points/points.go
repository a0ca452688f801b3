// Package points describes the fixed places a commute runs between.
package points

import (
	"fmt"
	"strings"
)

type PointID string

const (
	SFC       PointID = "sfc"
	SFCHonkan PointID = "sfcHonkan"
	Shonandai PointID = "shonandai"
)

type Point struct {
	ID   PointID
	Name string
}

var all = map[PointID]Point{
	SFC:       {ID: SFC, Name: "SFC"},
	SFCHonkan: {ID: SFCHonkan, Name: "本館前"},
	Shonandai: {ID: Shonandai, Name: "湘南台駅"},
}

func Lookup(id PointID) (Point, bool) {
	p, ok := all[id]
	return p, ok
}

// Parse accepts a point id case-insensitively, plus "station" for Shonandai.
func Parse(s string) (PointID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sfc", "campus":
		return SFC, nil
	case "sfchonkan", "honkan":
		return SFCHonkan, nil
	case "shonandai", "station":
		return Shonandai, nil
	}
	return "", fmt.Errorf("unknown point %q", s)
}

// IsCampus reports whether the point is one of the campus stops.
func (p PointID) IsCampus() bool { return p == SFC || p == SFCHonkan }

// Opposite returns the other end of the commute.
func (p PointID) Opposite() PointID {
	if p.IsCampus() {
		return Shonandai
	}
	return SFC
}

func (p PointID) String() string {
	if pt, ok := Lookup(p); ok {
		return pt.Name
	}
	return string(p)
}
