// Package xp derives levels and progress from a cumulative XP total.
package xp

const (
	// PerLevel is the fixed amount of XP separating two levels.
	PerLevel = 500

	// PerSession is the fixed award for one completed focus session.
	PerSession = 250
)

// Level returns the 1-based level for a total. Levels start at 1.
func Level(total int) int {
	return clamp(total)/PerLevel + 1
}

// Progress returns the fraction of the current level already earned, in [0,1).
func Progress(total int) float64 {
	return float64(clamp(total)%PerLevel) / float64(PerLevel)
}

// ToNextLevel returns how much XP is still missing to reach the next level.
func ToNextLevel(total int) int {
	return PerLevel - clamp(total)%PerLevel
}

// Stats bundles the derived values a view renders next to a profile.
type Stats struct {
	TotalXP     int     `json:"total_xp"`
	Level       int     `json:"level"`
	Progress    float64 `json:"progress"`
	ToNextLevel int     `json:"to_next_level"`
}

// Describe derives every value from a single total.
func Describe(total int) Stats {
	total = clamp(total)
	return Stats{
		TotalXP:     total,
		Level:       Level(total),
		Progress:    Progress(total),
		ToNextLevel: ToNextLevel(total),
	}
}

func clamp(total int) int {
	if total < 0 {
		return 0
	}
	return total
}
