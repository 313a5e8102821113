package geo

import (
	"math"
	"testing"
)

func TestDistanceOneDegreeOfLongitudeAtEquator(t *testing.T) {
	d := Distance(Point{Lat: 0, Lng: 0}, Point{Lat: 0, Lng: 1})
	want := 111195.0
	if math.Abs(d-want)/want > 0.005 {
		t.Fatalf("distance = %.1f m, want %.1f m ±0.5%%", d, want)
	}
}

func TestDistanceIsSymmetricAndZeroForSamePoint(t *testing.T) {
	a := Point{Lat: 37.3329, Lng: -121.8866}
	b := Point{Lat: 37.3442, Lng: -121.8793}

	if d := Distance(a, a); d != 0 {
		t.Fatalf("distance to self = %f, want 0", d)
	}
	if math.Abs(Distance(a, b)-Distance(b, a)) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", Distance(a, b), Distance(b, a))
	}
}

func TestBearingCardinalDirections(t *testing.T) {
	origin := Point{Lat: 0, Lng: 0}
	tests := []struct {
		name string
		to   Point
		want float64
	}{
		{"north", Point{Lat: 1, Lng: 0}, 0},
		{"east", Point{Lat: 0, Lng: 1}, 90},
		{"south", Point{Lat: -1, Lng: 0}, 180},
		{"west", Point{Lat: 0, Lng: -1}, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(origin, tt.to)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Fatalf("bearing = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestPointValid(t *testing.T) {
	if !(Point{Lat: 45, Lng: 120}).Valid() {
		t.Fatal("expected point to be valid")
	}
	if (Point{Lat: 91, Lng: 0}).Valid() {
		t.Fatal("latitude 91 should be invalid")
	}
	if (Point{Lat: 0, Lng: -181}).Valid() {
		t.Fatal("longitude -181 should be invalid")
	}
}
