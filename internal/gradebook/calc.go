package gradebook

import "math"

// PassingThreshold is the course-wide passing percentage.
const PassingThreshold = 60

var letterSteps = []struct {
	min    float64
	letter string
}{
	{97, "A+"}, {93, "A"}, {90, "A-"},
	{87, "B+"}, {83, "B"}, {80, "B-"},
	{77, "C+"}, {73, "C"}, {70, "C-"},
	{67, "D+"}, {63, "D"}, {60, "D-"},
}

// LetterGrade maps a percentage to its letter.
func LetterGrade(pct float64) string {
	for _, s := range letterSteps {
		if pct >= s.min {
			return s.letter
		}
	}
	return "F"
}

// letterFamily collapses +/- variants for distribution buckets.
func letterFamily(pct float64) string {
	return LetterGrade(pct)[:1]
}

func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
