package lesson

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/ratiba/core"
)

func TestOverlaps(t *testing.T) {
	ten := core.NewClock(10, 0)

	tests := []struct {
		name   string
		other  core.Clock
		buffer int
		want   bool
	}{
		{"same time", ten, 60, true},
		{"inside after", core.NewClock(10, 30), 60, true},
		{"inside before", core.NewClock(9, 1), 60, true},
		{"upper bound is open", core.NewClock(11, 0), 60, false},
		{"lower bound is open", core.NewClock(9, 0), 60, false},
		{"after window", core.NewClock(11, 5), 60, false},
		{"zero buffer", ten, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overlaps(ten, tt.other, tt.buffer))
		})
	}
}

func TestOverlaps_SameDay(t *testing.T) {
	tests := []struct {
		name  string
		t     core.Clock
		other core.Clock
		want  bool
	}{
		{"no conflict across midnight", core.NewClock(23, 30), core.NewClock(0, 10), false},
		{"early lesson", core.NewClock(0, 30), core.NewClock(0, 10), true},
		{"midnight lesson", core.NewClock(0, 30), core.NewClock(0, 0), true},
		{"new slot at midnight", core.NewClock(0, 0), core.NewClock(0, 59), true},
		{"one buffer after midnight", core.NewClock(1, 0), core.NewClock(0, 0), false},
		{"late lesson", core.NewClock(23, 30), core.NewClock(23, 59), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overlaps(tt.t, tt.other, 60))
		})
	}
}
