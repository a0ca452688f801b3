package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"sfcmove/internal/bicycle"
	"sfcmove/internal/carpool"
	"sfcmove/internal/schedule"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	expressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	soonStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func renderDepartures(w io.Writer, route schedule.Route, deps []schedule.UpcomingDeparture, ok bool, now time.Time) {
	fmt.Fprintln(w, titleStyle.Render("🚌 "+route.String()))
	switch {
	case !ok:
		fmt.Fprintln(w, mutedStyle.Render("  timetable not loaded yet"))
		return
	case len(deps) == 0:
		fmt.Fprintln(w, mutedStyle.Render("  no more buses today"))
		return
	}
	for _, d := range deps {
		fmt.Fprintln(w, "  "+departureLine(d, now))
	}
}

func departureLine(d schedule.UpcomingDeparture, now time.Time) string {
	kind := "  "
	if d.IsExpress {
		kind = expressStyle.Render("急")
	}
	left := fmt.Sprintf("in %d min", d.MinutesLeft(now))
	if d.Imminent(now) {
		left = soonStyle.Render(left)
	} else {
		left = mutedStyle.Render(left)
	}
	return fmt.Sprintf("%s %s %s  %s", d.ScheduledAt.Format("15:04"), kind, d.Destination, left)
}

var statusText = map[bicycle.Status]string{
	bicycle.StatusVacant:        "bikes and docks available",
	bicycle.StatusCannotRent:    "no bikes to rent",
	bicycle.StatusCannotReturn:  "no docks to return to",
	bicycle.StatusReturnWarning: "few docks left at the destination",
	bicycle.StatusRentalWarning: "few bikes left",
}

func levelStyle(l bicycle.Level) lipgloss.Style {
	switch l {
	case bicycle.Plenty:
		return okStyle
	case bicycle.Low:
		return warnStyle
	}
	return errorStyle
}

func renderBicycles(w io.Writer, s bicycle.Summary) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("🚲 %d available", s.Available)))
	if text, ok := statusText[s.Status]; ok {
		st := warnStyle
		switch s.Status {
		case bicycle.StatusVacant:
			st = okStyle
		case bicycle.StatusCannotRent, bicycle.StatusCannotReturn:
			st = errorStyle
		}
		fmt.Fprintln(w, "  "+st.Render(text))
	}
	section := func(label string, items []bicycle.StationItem, total int) {
		fmt.Fprintf(w, "  %s (%d)\n", label, total)
		for _, it := range items {
			fmt.Fprintf(w, "    %s %s\n", levelStyle(it.Level()).Render(fmt.Sprintf("%3d", it.Remaining)), it.Name)
		}
	}
	section("rent", s.DepStations, s.RentTotal)
	section("return", s.ArrStations, s.ReturnTotal)
	if !s.LastUpdatedAt.IsZero() {
		fmt.Fprintln(w, mutedStyle.Render("  updated "+s.LastUpdatedAt.Format("15:04")))
	}
}

var placeLabel = map[carpool.Place]string{
	carpool.PlaceStation: "湘南台駅から",
	carpool.PlaceSFC:     "SFCから",
}

func renderGroup(w io.Writer, g carpool.Group, loc *time.Location) {
	host := g.HostName
	if host == "" {
		host = "anonymous"
	}
	var tags []string
	if g.IsUserHost {
		tags = append(tags, "host")
	} else if g.IsUserMember {
		tags = append(tags, "joined")
	}
	if g.Full() {
		tags = append(tags, "full")
	}
	seats := fmt.Sprintf("%d/%d", g.PeopleCount, g.MaxPeople)
	if g.Full() {
		seats = errorStyle.Render(seats)
	} else {
		seats = okStyle.Render(seats)
	}
	line := fmt.Sprintf("%s  %s  %s  %s", g.CreatedAt.In(loc).Format("15:04"), placeLabel[g.DepFrom], seats, host)
	if len(tags) > 0 {
		line += " " + warnStyle.Render("["+strings.Join(tags, ",")+"]")
	}
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, mutedStyle.Render("  id "+g.ID))
	if g.Memo != "" {
		fmt.Fprintln(w, "  "+g.Memo)
	}
}

func renderGroups(w io.Writer, groups []carpool.Group, loc *time.Location) {
	if len(groups) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no open groups"))
		return
	}
	for _, g := range groups {
		renderGroup(w, g, loc)
	}
}
