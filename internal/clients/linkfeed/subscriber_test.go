package linkfeed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/intel-overlay/server/internal/config"
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
	"github.com/dpup/intel-overlay/server/internal/services"
)

// MockSink is a mock implementation of Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) AddLinks(ctx context.Context, id string, links []geo.Link) (*services.SessionInfo, error) {
	args := m.Called(ctx, id, links)
	info, _ := args.Get(0).(*services.SessionInfo)
	return info, args.Error(1)
}

func (m *MockSink) RemoveLinks(ctx context.Context, id string, guids []string) (*services.SessionInfo, error) {
	args := m.Called(ctx, id, guids)
	info, _ := args.Get(0).(*services.SessionInfo)
	return info, args.Error(1)
}

func (m *MockSink) Refresh(ctx context.Context, id string) (*services.SessionInfo, error) {
	args := m.Called(ctx, id)
	info, _ := args.Get(0).(*services.SessionInfo)
	return info, args.Error(1)
}

func TestSubscriber_Subject(t *testing.T) {
	s := NewSubscriber(nil, &MockSink{}, "intel.")
	assert.Equal(t, "intel.links.added", s.Subject(KindLinksAdded))
	assert.Equal(t, "intel.refresh", s.Subject(KindRefresh))
}

func TestSubscriber_HandleLinksAdded(t *testing.T) {
	sink := &MockSink{}
	s := NewSubscriber(nil, sink, "intel")
	ctx := context.Background()

	want := []geo.Link{geo.NewLink("abc", geo.TeamEnlightened,
		geo.Point{Latitude: 1, Longitude: 2}, geo.Point{Latitude: 3, Longitude: 4})}
	sink.On("AddLinks", ctx, "s1", want).Return(&services.SessionInfo{ID: "s1", Links: 1}, nil)

	info, err := s.Handle(ctx, "intel.links.added",
		[]byte(`{"session_id":"s1","links":[{"guid":"abc","team":"E","from":{"lat":1,"lng":2},"to":{"lat":3,"lng":4}}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, info.Links)
	sink.AssertExpectations(t)
}

func TestSubscriber_HandleRemovedAndRefresh(t *testing.T) {
	sink := &MockSink{}
	s := NewSubscriber(nil, sink, "intel")
	ctx := context.Background()

	sink.On("RemoveLinks", ctx, "s1", []string{"a", "b"}).Return(&services.SessionInfo{ID: "s1"}, nil)
	sink.On("Refresh", ctx, "s1").Return(&services.SessionInfo{ID: "s1"}, nil)

	_, err := s.Handle(ctx, "intel.links.removed", []byte(`{"session_id":"s1","guids":["a","b"]}`))
	require.NoError(t, err)
	_, err = s.Handle(ctx, "intel.refresh", []byte(`{"session_id":"s1"}`))
	require.NoError(t, err)

	sink.AssertExpectations(t)
}

func TestSubscriber_HandleErrors(t *testing.T) {
	sink := &MockSink{}
	s := NewSubscriber(nil, sink, "intel")
	ctx := context.Background()

	_, err := s.Handle(ctx, "intel.refresh", []byte(`not json`))
	assert.Error(t, err)

	_, err = s.Handle(ctx, "intel.refresh", []byte(`{}`))
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	_, err = s.Handle(ctx, "intel.portals", []byte(`{"session_id":"s1"}`))
	assert.ErrorIs(t, err, ErrUnknownSubject)

	sink.On("Refresh", ctx, "gone").Return(nil, services.ErrSessionNotFound)
	_, err = s.Handle(ctx, "intel.refresh", []byte(`{"session_id":"gone"}`))
	assert.True(t, errors.Is(err, services.ErrSessionNotFound))

	sink.AssertNotCalled(t, "AddLinks", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscriber_DrivesPlanner(t *testing.T) {
	cfg := testConfig()
	planner := services.NewPlannerService(&cfg.Planner, nil)
	defer planner.Close()
	ctx := context.Background()

	active := true
	session, err := planner.CreateSession(ctx, &active)
	require.NoError(t, err)

	a := geo.Point{Latitude: 22.5431, Longitude: 114.0579}
	b := geo.Point{Latitude: 22.5531, Longitude: 114.0679}
	line, err := geo.NewShape([]geo.Point{a, b}, false)
	require.NoError(t, err)
	_, err = planner.AddShape(ctx, session.ID, line)
	require.NoError(t, err)

	s := NewSubscriber(nil, planner, "intel")
	info, err := s.Handle(ctx, "intel.links.added", []byte(`{"session_id":"`+session.ID+
		`","links":[{"guid":"x","team":"R","from":{"lat":22.5531,"lng":114.0679},"to":{"lat":22.5431,"lng":114.0579}}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, info.Highlights)

	_, err = s.Handle(ctx, "intel.links.removed", []byte(`{"session_id":"`+session.ID+`","guids":["x"]}`))
	require.NoError(t, err)
	info, err = s.Handle(ctx, "intel.refresh", []byte(`{"session_id":"`+session.ID+`"}`))
	require.NoError(t, err)
	assert.Equal(t, 0, info.Highlights)
}

func testConfig() *config.Config {
	return config.DefaultConfig()
}
