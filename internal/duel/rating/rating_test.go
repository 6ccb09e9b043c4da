package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestAdjust(t *testing.T) {
	tests := []struct {
		name    string
		current *int
		win     bool
		want    int
	}{
		{"placement win lands at baseline", nil, true, 300},
		{"placement loss stays at zero", nil, false, 0},
		{"standard win", intPtr(1400), true, 1425},
		{"standard loss", intPtr(1400), false, 1375},
		{"loss floors at zero", intPtr(10), false, 0},
		{"win into upper boundary", intPtr(1475), true, 1500},
		{"upper tier win", intPtr(1500), true, 1600},
		{"upper tier loss floors at 1500", intPtr(1500), false, 1500},
		{"upper tier loss near floor", intPtr(1550), false, 1500},
		{"upper tier loss", intPtr(1800), false, 1700},
		{"top tier loss", intPtr(2600), false, 2500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Adjust(tt.current, tt.win))
		})
	}
}

func TestTierOf(t *testing.T) {
	tests := []struct {
		mmr  int
		want Info
	}{
		{0, Info{Tier: "Bronze", Division: 3, ProgressPercent: 0}},
		{150, Info{Tier: "Bronze", Division: 2, ProgressPercent: 50}},
		{299, Info{Tier: "Bronze", Division: 1, ProgressPercent: 99}},
		{300, Info{Tier: "Silver", Division: 3, ProgressPercent: 0}},
		{350, Info{Tier: "Silver", Division: 3, ProgressPercent: 50}},
		{620, Info{Tier: "Gold", Division: 3, ProgressPercent: 20}},
		{1000, Info{Tier: "Platinum", Division: 2, ProgressPercent: 0}},
		{1499, Info{Tier: "Diamond", Division: 1, ProgressPercent: 99}},
		{1500, Info{Tier: "Master", Division: 0, ProgressPercent: 0}},
		{2000, Info{Tier: "Master", Division: 0, ProgressPercent: 50}},
		{2500, Info{Tier: "Grandmaster", Division: 0, ProgressPercent: 100}},
		{4000, Info{Tier: "Grandmaster", Division: 0, ProgressPercent: 100}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TierOf(tt.mmr), "mmr=%d", tt.mmr)
	}
}
