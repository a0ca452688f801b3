package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfcmove/internal/carpool"
	"sfcmove/internal/points"
	"sfcmove/internal/prefs"
	"sfcmove/internal/schedule"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("METRICS_ADDR", "")
	t.Setenv("LOG_LEVEL", "error")
	a := &app{}
	defer a.close()
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPrefsCommand(t *testing.T) {
	out, err := runCLI(t, "prefs", "set", "east", "on")
	require.NoError(t, err)
	assert.Regexp(t, `east\s+\S*on`, out)

	_, err = runCLI(t, "prefs", "set", "east", "maybe")
	assert.Error(t, err)
}

func TestSuggestCommand(t *testing.T) {
	out, err := runCLI(t, "suggest", "--lat", "35.387615", "--lon", "139.428434")
	require.NoError(t, err)
	assert.Contains(t, out, "SFC → 湘南台駅")
	assert.Contains(t, out, "location")

	out, err = runCLI(t, "suggest", "--from", "station")
	require.NoError(t, err)
	assert.Contains(t, out, "湘南台駅 → SFC")
}

func TestCarpoolNeedsStore(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("PGDATABASE", "")
	_, err := runCLI(t, "carpool", "list")
	assert.ErrorContains(t, err, "carpool store not configured")
}

func TestExplicitDirection(t *testing.T) {
	d, _, err := explicitDirection("station", "")
	require.NoError(t, err)
	assert.Equal(t, points.Direction{Dep: points.Shonandai, Arr: points.SFC}, d)

	d, _, err = explicitDirection("", "honkan")
	require.NoError(t, err)
	assert.Equal(t, points.Direction{Dep: points.Shonandai, Arr: points.SFCHonkan}, d)

	_, _, err = explicitDirection("sfc", "honkan")
	assert.Error(t, err)
	_, _, err = explicitDirection("airport", "")
	assert.Error(t, err)
}

func TestResolveIgnoresFixWhenDisabled(t *testing.T) {
	var f directionFlags
	cmd := &cobra.Command{Use: "x"}
	f.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--lat", "35.387615", "--lon", "139.428434"}))

	morning := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	d, src, err := f.resolve(cmd, prefs.Preferences{LocationBasedSuggestEnabled: false}, morning)
	require.NoError(t, err)
	assert.Equal(t, "time of day", src)
	assert.Equal(t, points.Shonandai, d.Dep)

	d, src, err = f.resolve(cmd, prefs.Defaults(), morning)
	require.NoError(t, err)
	assert.Equal(t, "location", src)
	assert.Equal(t, points.SFC, d.Dep)
}

func TestClockAt(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	now := time.Date(2026, 4, 1, 9, 15, 30, 0, jst)
	got, err := clockAt("18:20", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 1, 18, 20, 0, 0, jst), got)

	_, err = clockAt("6pm", now)
	assert.Error(t, err)
}

func TestCampusStop(t *testing.T) {
	p, err := campusStop("honkan")
	require.NoError(t, err)
	assert.Equal(t, points.SFCHonkan, p)
	_, err = campusStop("station")
	assert.Error(t, err)
}

func TestRefusalKeepsSentinel(t *testing.T) {
	err := refusal(carpool.ErrGroupFull)
	assert.ErrorIs(t, err, carpool.ErrGroupFull)
	assert.Contains(t, err.Error(), "that group is full")

	other := errors.New("dial tcp: refused")
	assert.Equal(t, other, refusal(other))
}

func TestFilterPlace(t *testing.T) {
	groups := []carpool.Group{{ID: "a", DepFrom: carpool.PlaceSFC}, {ID: "b", DepFrom: carpool.PlaceStation}}
	got := filterPlace(groups, carpool.PlaceStation)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
	assert.Len(t, groups, 2)
}

func TestRenderDepartures(t *testing.T) {
	now := time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)
	route := schedule.Route{Dep: points.SFC, Arr: points.Shonandai}
	var buf bytes.Buffer

	renderDepartures(&buf, route, nil, false, now)
	assert.Contains(t, buf.String(), "not loaded")

	buf.Reset()
	renderDepartures(&buf, route, []schedule.UpcomingDeparture{}, true, now)
	assert.Contains(t, buf.String(), "no more buses")

	buf.Reset()
	renderDepartures(&buf, route, []schedule.UpcomingDeparture{
		{Destination: "湘南台", IsExpress: true, ScheduledAt: now.Add(3 * time.Minute)},
		{Destination: "湘南台", ScheduledAt: now.Add(20 * time.Minute)},
	}, true, now)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "14:03")
	assert.Contains(t, lines[1], "in 3 min")
	assert.Contains(t, lines[2], "in 20 min")
}
