package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var campus = Point{Lat: 12.9716, Lng: 77.5946}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
		tol  float64
	}{
		{name: "same point", a: campus, b: campus, want: 0, tol: 1e-9},
		{name: "one degree of latitude", a: Point{Lat: 0, Lng: 0}, b: Point{Lat: 1, Lng: 0}, want: 111195, tol: 111195 * 0.001},
		{name: "one degree along a meridian off the equator", a: Point{Lat: 45, Lng: 10}, b: Point{Lat: 46, Lng: 10}, want: 111195, tol: 111195 * 0.001},
		{name: "antipodal on equator", a: Point{Lat: 0, Lng: 0}, b: Point{Lat: 0, Lng: 180}, want: math.Pi * EarthRadiusMeters, tol: 1},
		{name: "about one km from campus", a: campus, b: Point{Lat: 12.98, Lng: 77.6}, want: 1102, tol: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, tt.tol)
			assert.GreaterOrEqual(t, got, 0.0)
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	pts := []Point{
		campus,
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 51.5074, Lng: -0.1278},
		{Lat: 89.9, Lng: 179.9},
		{Lat: -89.9, Lng: -179.9},
	}
	for _, a := range pts {
		for _, b := range pts {
			assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9, "distance(%v, %v)", a, b)
		}
	}
}

func TestDistanceNearAntipodal(t *testing.T) {
	half := math.Pi * EarthRadiusMeters
	assertFinite := func(a, b Point) {
		t.Helper()
		got := Distance(a, b)
		require.False(t, math.IsNaN(got), "distance(%v, %v) is NaN", a, b)
		assert.InDelta(t, half, got, half*0.001, "distance(%v, %v)", a, b)
	}

	assertFinite(Point{Lat: -86.78, Lng: -179}, Point{Lat: 86.78, Lng: 1})
	for lat := -89.0; lat <= 89; lat += 0.37 {
		for lng := -180.0; lng <= 0; lng += 1.3 {
			assertFinite(Point{Lat: lat, Lng: lng}, Point{Lat: -lat, Lng: lng + 180})
		}
	}

	f := Fence{ID: "antipode", Center: Point{Lat: 86.78, Lng: 1}, RadiusMeters: half * 2}
	assert.True(t, f.Contains(Point{Lat: -86.78, Lng: -179}))
	_, meters, ok := Nearest(Point{Lat: -86.78, Lng: -179}, []Fence{f})
	require.True(t, ok)
	assert.InDelta(t, half, meters, half*0.001)
}

func TestDistanceNonFinite(t *testing.T) {
	assert.True(t, math.IsNaN(Distance(Point{Lat: math.NaN()}, campus)))
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{name: "origin", p: Point{}, want: true},
		{name: "campus", p: campus, want: true},
		{name: "poles and date line", p: Point{Lat: -90, Lng: 180}, want: true},
		{name: "nan latitude", p: Point{Lat: math.NaN(), Lng: 1}, want: false},
		{name: "inf longitude", p: Point{Lat: 1, Lng: math.Inf(-1)}, want: false},
		{name: "latitude out of range", p: Point{Lat: 90.5, Lng: 0}, want: false},
		{name: "longitude out of range", p: Point{Lat: 0, Lng: -181}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Valid())
		})
	}
}

func TestFenceValidate(t *testing.T) {
	assert.NoError(t, Fence{Center: campus, RadiusMeters: 100}.Validate())
	assert.ErrorIs(t, Fence{Center: campus}.Validate(), ErrInvalidRadius)
	assert.ErrorIs(t, Fence{Center: campus, RadiusMeters: -5}.Validate(), ErrInvalidRadius)
	assert.ErrorIs(t, Fence{Center: campus, RadiusMeters: math.NaN()}.Validate(), ErrInvalidRadius)
	assert.ErrorIs(t, Fence{Center: Point{Lat: 100}, RadiusMeters: 10}.Validate(), ErrInvalidCenter)
}

func TestWithinAnyFence(t *testing.T) {
	far := Point{Lat: 12.98, Lng: 77.6}
	d := Distance(far, campus)

	tests := []struct {
		name   string
		p      Point
		fences []Fence
		want   bool
	}{
		{name: "no fences", p: campus, fences: nil, want: false},
		{name: "empty fences", p: campus, fences: []Fence{}, want: false},
		{name: "at center", p: campus, fences: []Fence{{Center: campus, RadiusMeters: 100}}, want: true},
		{name: "exactly on boundary", p: far, fences: []Fence{{Center: campus, RadiusMeters: d}}, want: true},
		{name: "just outside boundary", p: far, fences: []Fence{{Center: campus, RadiusMeters: d - 1e-6}}, want: false},
		{name: "outside 100m campus", p: far, fences: []Fence{{Center: campus, RadiusMeters: 100}}, want: false},
		{
			name: "second fence matches",
			p:    far,
			fences: []Fence{
				{ID: "main", Center: campus, RadiusMeters: 100},
				{ID: "annex", Center: far, RadiusMeters: 50},
			},
			want: true,
		},
		{name: "zero radius never matches", p: campus, fences: []Fence{{Center: campus}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WithinAnyFence(tt.p, tt.fences))
		})
	}
}

func TestNearest(t *testing.T) {
	far := Point{Lat: 12.98, Lng: 77.6}
	fences := []Fence{
		{ID: "broken", Center: far},
		{ID: "main", Center: campus, RadiusMeters: 100},
		{ID: "annex", Center: Point{Lat: 12.979, Lng: 77.6}, RadiusMeters: 100},
	}

	f, meters, ok := Nearest(far, fences)
	assert.True(t, ok)
	assert.Equal(t, "annex", f.ID)
	assert.InDelta(t, Distance(far, fences[2].Center), meters, 1e-9)

	_, _, ok = Nearest(far, fences[:1])
	assert.False(t, ok)
}
