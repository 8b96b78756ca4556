package tracker

import "testing"

func TestLevelForThresholds(t *testing.T) {
	cases := []struct {
		name        string
		xp          float64
		wantCurrent int
		wantAt      float64
		wantNext    float64
	}{
		{name: "zero xp", xp: 0, wantCurrent: 1, wantAt: 0, wantNext: 100},
		{name: "just below level 2", xp: 99, wantCurrent: 1, wantAt: 99, wantNext: 100},
		{name: "exactly level 2", xp: 100, wantCurrent: 2, wantAt: 0, wantNext: 200},
		{name: "just below level 3", xp: 299, wantCurrent: 2, wantAt: 199, wantNext: 200},
		{name: "exactly level 3", xp: 300, wantCurrent: 3, wantAt: 0, wantNext: 300},
		{name: "mid level 3", xp: 450, wantCurrent: 3, wantAt: 150, wantNext: 300},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lvl := LevelFor(tc.xp)
			if lvl.Current != tc.wantCurrent {
				t.Fatalf("LevelFor(%v).Current = %d, want %d", tc.xp, lvl.Current, tc.wantCurrent)
			}
			if lvl.XPAtCurrentLevel != tc.wantAt {
				t.Fatalf("LevelFor(%v).XPAtCurrentLevel = %v, want %v", tc.xp, lvl.XPAtCurrentLevel, tc.wantAt)
			}
			if lvl.XPForNextLevel != tc.wantNext {
				t.Fatalf("LevelFor(%v).XPForNextLevel = %v, want %v", tc.xp, lvl.XPForNextLevel, tc.wantNext)
			}
		})
	}
}

func TestLevelForNegativeXP(t *testing.T) {
	lvl := LevelFor(-50)
	if lvl.Current != 1 || lvl.XPAtCurrentLevel != 0 {
		t.Fatalf("negative XP should clamp to level 1 with zero progress, got %+v", lvl)
	}
}

func TestLevelForMonotonic(t *testing.T) {
	prev := 0
	for xp := 0.0; xp <= 10000; xp += 37 {
		lvl := LevelFor(xp)
		if lvl.Current < prev {
			t.Fatalf("level decreased from %d to %d at xp=%v", prev, lvl.Current, xp)
		}
		if lvl.XPAtCurrentLevel < 0 || lvl.XPAtCurrentLevel >= lvl.XPForNextLevel {
			t.Fatalf("progress out of range at xp=%v: %+v", xp, lvl)
		}
		prev = lvl.Current
	}
}

func TestLevelFromTotalTime(t *testing.T) {
	// 120 minutes of coding is 120 XP, past the 100 XP bar for level 2.
	lvl := levelFromTotalTime(120 * 60 * 1000)
	if lvl.Current != 2 {
		t.Fatalf("120 minutes should reach level 2, got %d", lvl.Current)
	}
	if lvl.XPAtCurrentLevel != 20 {
		t.Fatalf("expected 20 XP into level 2, got %v", lvl.XPAtCurrentLevel)
	}
}
