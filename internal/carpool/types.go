// Package carpool runs the lifecycle of ad-hoc taxi sharing groups: create,
// join, leave and complete, with a per-group capacity and at most one active
// group per user.
package carpool

import (
	"fmt"
	"time"
)

// MaxPeople is the capacity of one taxi.
const MaxPeople = 4

// Place is where a group sets off from.
type Place string

const (
	PlaceStation Place = "station"
	PlaceSFC     Place = "sfc"
)

func ParsePlace(s string) (Place, error) {
	p := Place(s)
	switch p {
	case PlaceStation, PlaceSFC:
		return p, nil
	}
	return "", fmt.Errorf("unknown departure place %q", s)
}

// GroupRow mirrors a taxi_groups row.
type GroupRow struct {
	ID          string
	CreatedAt   time.Time
	CompletedAt *time.Time
	HostID      string
	Memo        *string
	DepFrom     Place
}

func (r GroupRow) Active() bool { return r.CompletedAt == nil }

// Membership mirrors a taxi_group_members row.
type Membership struct {
	GroupID string
	UserID  string
}

type NewGroup struct {
	HostID  string
	Memo    *string
	DepFrom Place
}

// Group is the caller's read-only view of a group, rebuilt on every fetch.
type Group struct {
	ID           string
	CreatedAt    time.Time
	CompletedAt  *time.Time
	HostID       string
	HostName     string
	Memo         string
	DepFrom      Place
	PeopleCount  int
	MaxPeople    int
	IsUserMember bool
	IsUserHost   bool
}

func (g Group) Active() bool { return g.CompletedAt == nil }

func (g Group) Full() bool { return g.PeopleCount >= g.MaxPeople }

// SeatsLeft never goes below zero.
func (g Group) SeatsLeft() int {
	if g.PeopleCount >= g.MaxPeople {
		return 0
	}
	return g.MaxPeople - g.PeopleCount
}

// CreateRequest describes a new group. PeopleCount is what the host expects to
// travel with and is informational only; capacity is always MaxPeople.
type CreateRequest struct {
	PeopleCount int
	Memo        string
	DepFrom     Place
}

func project(row GroupRow, members []Membership, hostName, userID string) Group {
	g := Group{
		ID:          row.ID,
		CreatedAt:   row.CreatedAt,
		CompletedAt: row.CompletedAt,
		HostID:      row.HostID,
		HostName:    hostName,
		DepFrom:     row.DepFrom,
		MaxPeople:   MaxPeople,
		IsUserHost:  row.HostID == userID,
	}
	if row.Memo != nil {
		g.Memo = *row.Memo
	}
	for _, m := range members {
		if m.GroupID != row.ID {
			continue
		}
		g.PeopleCount++
		if m.UserID == userID {
			g.IsUserMember = true
		}
	}
	return g
}
