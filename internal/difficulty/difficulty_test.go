package difficulty

import (
	"testing"

	"studybuddy/internal/config"
	"studybuddy/internal/models"
)

func newAssessor() *Assessor {
	cfg := config.Default().Difficulty
	return NewAssessor(&cfg)
}

func TestCountSyllables(t *testing.T) {
	tests := []struct {
		word string
		want int
	}{
		{"cat", 1},
		{"water", 2},
		{"banana", 3},
		{"hypothesis", 4},
		{"the", 1},
		{"see", 1},
		{"rhythm", 1},
		{"idea", 2},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			if got := countSyllables(tt.word); got != tt.want {
				t.Errorf("countSyllables(%q) = %d, want %d", tt.word, got, tt.want)
			}
		})
	}
}

func TestScoreOrdering(t *testing.T) {
	a := newAssessor()
	simple := "The cat sat. The dog ran. It was fun. We all laughed."
	hard := "The empirical methodology necessitates a theoretical paradigm synthesizing " +
		"phenomenological hypotheses, notwithstanding considerable epistemological ambiguity " +
		"surrounding conceptual frameworks and interdisciplinary meta-analytical considerations."

	simpleScore := a.Score(simple)
	hardScore := a.Score(hard)
	if simpleScore >= hardScore {
		t.Errorf("Score(simple)=%v should be below Score(hard)=%v", simpleScore, hardScore)
	}
	for name, score := range map[string]float64{"simple": simpleScore, "hard": hardScore} {
		if score < 0 || score > 1 {
			t.Errorf("Score(%s) = %v, want within [0,1]", name, score)
		}
	}
}

func TestScoreEmptyText(t *testing.T) {
	if got := newAssessor().Score(""); got != 0 {
		t.Errorf("Score(\"\") = %v, want 0", got)
	}
}

func TestCategorize(t *testing.T) {
	a := newAssessor()
	tests := []struct {
		score float64
		want  string
	}{
		{0.0, models.LevelBeginner},
		{0.29, models.LevelBeginner},
		{0.3, models.LevelIntermediate},
		{0.5, models.LevelIntermediate},
		{0.7, models.LevelAdvanced},
		{1.0, models.LevelAdvanced},
	}
	for _, tt := range tests {
		if got := a.Categorize(tt.score); got != tt.want {
			t.Errorf("Categorize(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestInBand(t *testing.T) {
	a := newAssessor()
	if !a.InBand(0.1, models.LevelBeginner) {
		t.Error("InBand(0.1, beginner) = false, want true")
	}
	if a.InBand(0.9, models.LevelBeginner) {
		t.Error("InBand(0.9, beginner) = true, want false")
	}
	// unknown level filters nothing
	if !a.InBand(0.9, "unknown") {
		t.Error("InBand with unknown level should accept everything")
	}
}
