package focus

import (
	"math/rand/v2"
	"time"
)

// EncouragementWindow is how long a checkpoint message stays visible.
const EncouragementWindow = 6 * time.Second

// Checkpoint is a minute mark within a run at which one encouragement is shown.
type Checkpoint struct {
	Minute   int
	Messages []string
}

// DefaultCheckpoints is the fixed checkpoint table.
var DefaultCheckpoints = []Checkpoint{
	{Minute: 5, Messages: []string{"Nice start. You're building momentum 💪", "Good focus. Keep going ✨"}},
	{Minute: 10, Messages: []string{"You're 40% in — stay sharp 🔥", "Focus streak forming 🧠"}},
	{Minute: 15, Messages: []string{"Halfway there. Don't break the flow 🚀", "Great discipline so far 💎"}},
	{Minute: 20, Messages: []string{"Almost done. Finish strong 🏁", "Stay with it — you're close ⏳"}},
}

// Chooser picks an index in [0, n).
type Chooser func(n int) int

// RandomChooser picks uniformly using the unseeded global source, so the choice is not
// reproducible between runs.
func RandomChooser(n int) int {
	return rand.IntN(n)
}
