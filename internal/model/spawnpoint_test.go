package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoint_Round(t *testing.T) {
	tests := []struct {
		name      string
		point     Point
		precision int
		want      Point
	}{
		{
			name:      "three decimals",
			point:     NewPoint(40.123456, -74.987654),
			precision: 3,
			want:      NewPoint(40.123, -74.988),
		},
		{
			name:      "zero precision",
			point:     NewPoint(40.6, -74.4),
			precision: 0,
			want:      NewPoint(41, -74),
		},
		{
			name:      "already rounded",
			point:     NewPoint(40.5, -74.25),
			precision: 2,
			want:      NewPoint(40.5, -74.25),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.point.Round(tt.precision)
			assert.InDelta(t, tt.want.Lat, got.Lat, 1e-9)
			assert.InDelta(t, tt.want.Lon, got.Lon, 1e-9)
		})
	}
}

func TestSpawnpoint_CycleSecond(t *testing.T) {
	tests := []struct {
		name     string
		duration int32
		raw      int32
		want     int32
	}{
		{name: "full hour reports directly", duration: 60, raw: 100, want: 100},
		{name: "half hour shifts by half cycle", duration: 30, raw: 200, want: 2000},
		{name: "half hour raw zero", duration: 30, raw: 0, want: 1800},
		{name: "half hour wraps at boundary", duration: 30, raw: 1800, want: 0},
		{name: "half hour wraps near end", duration: 30, raw: 3599, want: 1799},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := Spawnpoint{DurationMinutes: tt.duration, DespawnSecond: tt.raw}
			assert.Equal(t, tt.want, sp.CycleSecond())
		})
	}
}
