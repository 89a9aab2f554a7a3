package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapCenter(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		lat, lon string
		ok       bool
	}{
		{"google static map", "https://maps.googleapis.com/maps/api/staticmap?center=35.0844,-106.6504&zoom=15&size=600x300", "35.0844", "-106.6504", true},
		{"escaped ampersands", "https://maps.example.com/staticmap?size=1x1&amp;center=35.1,-106.2&amp;zoom=3", "35.1", "-106.2", true},
		{"encoded comma", "https://maps.example.com/staticmap?center=35.1%2C-106.2", "35.1", "-106.2", true},
		{"relative url", "/staticmap?center=40.5, -74.25&zoom=1", "40.5", "-74.25", true},
		{"no center", "https://maps.example.com/staticmap?zoom=3", "", "", false},
		{"address center", "https://maps.example.com/staticmap?center=Albuquerque,NM", "", "", false},
		{"out of range", "https://maps.example.com/staticmap?center=135.1,-106.2", "", "", false},
		{"empty", "", "", "", false},
		{"garbage", "%%%center=", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, ok := MapCenter(tt.in)
			assert.Equal(t, tt.lat, lat)
			assert.Equal(t, tt.lon, lon)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestCoordinate(t *testing.T) {
	got, ok := Coordinate(" 61.2181 ")
	assert.True(t, ok)
	assert.Equal(t, "61.2181", got)

	got, ok = Coordinate("north")
	assert.False(t, ok)
	assert.Equal(t, "north", got)
}
