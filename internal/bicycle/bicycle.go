// Package bicycle summarises shared-bicycle availability between station and campus.
package bicycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"sfcmove/internal/points"
)

// Station is one docking port as reported by the availability API.
type Station struct {
	StationID         string `json:"station_id"`
	Name              string `json:"name"`
	NumBikesAvailable int    `json:"num_bikes_available"`
	NumDocksAvailable int    `json:"num_docks_available"`
}

type Stations struct {
	ShonandaiWest []Station `json:"shonandai_west"`
	ShonandaiEast []Station `json:"shonandai_east"`
	SFC           []Station `json:"sfc"`
}

type Response struct {
	Stations      Stations  `json:"stations"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Client reads the availability endpoint through a Fetcher rooted at the API URL.
type Client struct {
	f Fetcher
}

func NewClient(f Fetcher) *Client { return &Client{f: f} }

func (c *Client) Fetch(ctx context.Context) (*Response, error) {
	data, err := c.f.Fetch(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("fetch bicycle availability: %w", err)
	}
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode bicycle availability: %w", err)
	}
	return &r, nil
}

// Level grades a single station's count.
type Level int

const (
	Empty Level = iota
	Low
	Plenty
)

// plentyThreshold is the count from which a station or total is considered comfortable.
const plentyThreshold = 4

func LevelOf(n int) Level {
	switch {
	case n >= plentyThreshold:
		return Plenty
	case n > 0:
		return Low
	default:
		return Empty
	}
}

type Status string

const (
	StatusVacant        Status = "vacant"
	StatusCannotRent    Status = "cannot_rent"
	StatusCannotReturn  Status = "cannot_return"
	StatusReturnWarning Status = "return_warning"
	StatusRentalWarning Status = "rental_warning"
	StatusNone          Status = ""
)

type StationItem struct {
	Name      string
	Remaining int
}

func (s StationItem) Level() Level { return LevelOf(s.Remaining) }

// Summary is what a commuter leaving from Dep sees: bikes to rent near Dep and
// free docks near the other end.
type Summary struct {
	DepStations   []StationItem
	ArrStations   []StationItem
	RentTotal     int
	ReturnTotal   int
	Available     int
	Status        Status
	LastUpdatedAt time.Time
}

func Summarize(r *Response, dep points.PointID, includeEast bool) Summary {
	station := r.Stations.ShonandaiWest
	if includeEast {
		station = append(append([]Station{}, r.Stations.ShonandaiWest...), r.Stations.ShonandaiEast...)
	}
	campus := r.Stations.SFC

	rentFrom, returnTo := campus, station
	if dep == points.Shonandai {
		rentFrom, returnTo = station, campus
	}

	s := Summary{LastUpdatedAt: r.LastUpdatedAt}
	for _, st := range rentFrom {
		s.DepStations = append(s.DepStations, StationItem{Name: st.Name, Remaining: st.NumBikesAvailable})
		s.RentTotal += st.NumBikesAvailable
	}
	for _, st := range returnTo {
		s.ArrStations = append(s.ArrStations, StationItem{Name: st.Name, Remaining: st.NumDocksAvailable})
		s.ReturnTotal += st.NumDocksAvailable
	}
	byRemaining := func(items []StationItem) {
		sort.SliceStable(items, func(i, j int) bool { return items[i].Remaining > items[j].Remaining })
	}
	byRemaining(s.DepStations)
	byRemaining(s.ArrStations)

	s.Available = min(s.RentTotal, s.ReturnTotal)
	s.Status = statusOf(s)
	return s
}

func statusOf(s Summary) Status {
	switch {
	case s.Available >= plentyThreshold:
		return StatusVacant
	case s.RentTotal <= 0:
		return StatusCannotRent
	case s.ReturnTotal <= 0:
		return StatusCannotReturn
	case s.ReturnTotal < plentyThreshold:
		return StatusReturnWarning
	case s.RentTotal < plentyThreshold:
		return StatusRentalWarning
	}
	return StatusNone
}
