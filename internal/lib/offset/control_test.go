package offset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

type mockMapControl struct {
	mock.Mock
}

func (m *mockMapControl) SetCenter(center geo.Point) {
	m.Called(center)
}

func (m *mockMapControl) SetZoom(zoom int) {
	m.Called(zoom)
}

var beijing = geo.Point{Latitude: 39.9, Longitude: 116.4}

func TestMapType_Offset(t *testing.T) {
	assert.True(t, Roadmap.Offset())
	assert.True(t, Terrain.Offset())
	assert.True(t, MapType("CUSTOM").Offset(), "unknown imagery is assumed to be shifted")
	assert.False(t, Satellite.Offset())
	assert.False(t, Hybrid.Offset())
}

func TestParseMapType(t *testing.T) {
	assert.Equal(t, Roadmap, ParseMapType(""))
	assert.Equal(t, Satellite, ParseMapType("satellite"))
	assert.Equal(t, Hybrid, ParseMapType(" Hybrid "))
	assert.Equal(t, MapType("CUSTOM"), ParseMapType("custom"))
}

func TestMapTileCoordinate(t *testing.T) {
	assert.Equal(t, beijing, MapTileCoordinate(beijing, Satellite))
	assert.Equal(t, beijing, MapTileCoordinate(beijing, Hybrid))
	assert.Equal(t, TransformPoint(beijing), MapTileCoordinate(beijing, Roadmap))
	assert.Equal(t, TransformPoint(beijing), MapTileCoordinate(beijing, Terrain))
}

func TestControl_DelegatesWithTransform(t *testing.T) {
	inner := &mockMapControl{}
	inner.On("SetCenter", TransformPoint(beijing)).Once()
	inner.On("SetZoom", 15).Once()

	control := NewControl(inner, Roadmap)
	control.Update(beijing, 15)

	inner.AssertExpectations(t)
}

func TestControl_SatelliteBypass(t *testing.T) {
	inner := &mockMapControl{}
	inner.On("SetCenter", beijing).Once()
	inner.On("SetZoom", 12).Once()

	control := NewControl(inner, Roadmap)
	control.SetMapType(Satellite)
	assert.Equal(t, Satellite, control.MapType())
	control.ZoomAnim(beijing, 12)

	inner.AssertExpectations(t)
}

func TestControl_WithViewport(t *testing.T) {
	viewport := &Viewport{}
	control := NewControl(viewport, Hybrid)

	control.Update(beijing, 10)
	assert.Equal(t, beijing, viewport.Center)
	assert.Equal(t, 10, viewport.Zoom)

	control.SetMapType(Roadmap)
	control.SetCenter(beijing)
	assert.Equal(t, TransformPoint(beijing), viewport.Center)
	assert.Equal(t, 10, viewport.Zoom)
}
