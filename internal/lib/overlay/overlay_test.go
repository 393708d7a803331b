package overlay

import (
	"bytes"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/intel-overlay/server/internal/lib/donelinks"
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

func sampleLinks() []geo.Link {
	return []geo.Link{
		geo.NewLink("b-link", geo.TeamResistance, geo.Point{Latitude: 0, Longitude: 0}, geo.Point{Latitude: 0, Longitude: 1}),
		geo.NewLink("a-link", geo.TeamEnlightened, geo.Point{Latitude: 1, Longitude: 1}, geo.Point{Latitude: 0, Longitude: 1}),
	}
}

func TestLayer_RenderAndRemove(t *testing.T) {
	layer := NewLayer()
	links := sampleLinks()

	hb := layer.RenderHighlight(links[0])
	ha := layer.RenderHighlight(links[1])
	require.Equal(t, 2, layer.Len())

	highlights := layer.Highlights()
	require.Len(t, highlights, 2)
	assert.Equal(t, "a-link", highlights[0].GUID, "sorted by guid")
	assert.Equal(t, donelinks.StyleFor(geo.TeamEnlightened), highlights[0].Style)
	assert.Equal(t, links[1].Edge, highlights[0].Edge)

	layer.RemoveHighlight(hb)
	layer.RemoveHighlight("not-a-handle")
	layer.RemoveHighlight(hb)
	assert.Equal(t, 1, layer.Len())

	layer.RemoveHighlight(ha)
	assert.Equal(t, 0, layer.Len())
	assert.Empty(t, layer.Highlights())
}

func TestStyleFor(t *testing.T) {
	style := donelinks.StyleFor(geo.TeamResistance)
	assert.Equal(t, "#0088FF", style.Color)
	assert.Equal(t, 0.8, style.Opacity)
	assert.Equal(t, 6, style.Weight)
	assert.Equal(t, []int{6, 12}, style.DashArray)
	assert.False(t, style.Clickable)

	assert.Equal(t, "#03DC03", donelinks.StyleFor(geo.TeamEnlightened).Color)
	assert.Equal(t, "#FF6600", donelinks.StyleFor(geo.TeamNone).Color)
	assert.Equal(t, "#FF6600", donelinks.StyleFor(geo.Team(9)).Color)
}

func TestKMLColor(t *testing.T) {
	c, err := kmlColor("#0088FF", 0.8)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x00, G: 0x88, B: 0xFF, A: 204}, c)

	_, err = kmlColor("blue", 1)
	assert.Error(t, err)
	_, err = kmlColor("#GG0000", 1)
	assert.Error(t, err)
}

func TestWriteKML(t *testing.T) {
	layer := NewLayer()
	for _, link := range sampleLinks() {
		layer.RenderHighlight(link)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, "Done Links", layer.Highlights()))

	out := buf.String()
	assert.Contains(t, out, "<kml")
	assert.Contains(t, out, "Done Links")
	assert.Equal(t, 2, strings.Count(out, "<Placemark>"))
	assert.Equal(t, 2, strings.Count(out, "<LineString>"))
	assert.Contains(t, out, "a-link")
	assert.Contains(t, out, "#done-link-resistance")
	assert.Contains(t, out, "#done-link-enlightened")
}

func TestWriteKML_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, "Nothing", nil))
	assert.NotContains(t, buf.String(), "<Placemark>")
	assert.Equal(t, 3, strings.Count(buf.String(), "<Style id="), "one shared style per team")
}
