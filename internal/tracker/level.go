package tracker

import "math"

// XP is cumulative coding time in minutes. Reaching level n costs
// 50*(n-1)*n XP in total, so each level-up from n costs 100*n XP.

func xpForLevel(level int) float64 {
	if level <= 1 {
		return 0
	}
	return 50 * float64(level-1) * float64(level)
}

// LevelFor derives the level reached with the given XP, plus progress within
// it. Pure and total over all inputs; negative XP is treated as zero.
func LevelFor(xp float64) Level {
	if xp < 0 || math.IsNaN(xp) {
		xp = 0
	}

	current := int(math.Floor((1 + math.Sqrt(1+4*xp/50)) / 2))
	if current < 1 {
		current = 1
	}

	return Level{
		Current:          current,
		XPAtCurrentLevel: xp - xpForLevel(current),
		XPForNextLevel:   xpForLevel(current+1) - xpForLevel(current),
	}
}

// levelFromTotalTime converts a millisecond total into the minute-based XP
// scale before deriving the level.
func levelFromTotalTime(totalTimeMs int64) Level {
	return LevelFor(float64(totalTimeMs) / float64(60*1000))
}
