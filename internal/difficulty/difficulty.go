package difficulty

import (
	"regexp"
	"strings"

	"studybuddy/internal/config"
	"studybuddy/internal/models"
)

var (
	wordRe     = regexp.MustCompile(`[\p{L}\p{N}]+`)
	sentenceRe = regexp.MustCompile(`[.!?]+`)
)

// technicalTerms are academic vocabulary markers that push a text towards the
// advanced band.
var technicalTerms = map[string]struct{}{
	"analyze": {}, "synthesize": {}, "evaluate": {}, "hypothesis": {},
	"methodology": {}, "paradigm": {}, "phenomenon": {}, "conceptual": {},
	"theoretical": {}, "empirical": {},
}

// Assessor scores text difficulty on a 0..1 scale.
type Assessor struct {
	levels map[string]config.Band
}

func NewAssessor(cfg *config.DifficultyConfig) *Assessor {
	levels := cfg.Levels
	if len(levels) == 0 {
		levels = config.Default().Difficulty.Levels
	}
	return &Assessor{levels: levels}
}

type metrics struct {
	avgSentenceLength  float64
	complexWordRatio   float64
	syllableDensity    float64
	technicalTermRatio float64
}

// Score rates text difficulty: 0.0 is easy, 1.0 is hard.
func (a *Assessor) Score(text string) float64 {
	m := calculateMetrics(text)
	score := m.avgSentenceLength*0.2 +
		m.complexWordRatio*0.3 +
		m.syllableDensity*0.3 +
		m.technicalTermRatio*0.2
	score /= 100
	if score > 1 {
		return 1
	}
	return score
}

// Categorize maps a score into the configured level whose band contains it.
func (a *Assessor) Categorize(score float64) string {
	switch {
	case score < a.band(models.LevelBeginner).Max:
		return models.LevelBeginner
	case score < a.band(models.LevelIntermediate).Max:
		return models.LevelIntermediate
	default:
		return models.LevelAdvanced
	}
}

// InBand reports whether the score falls inside the named level's range.
func (a *Assessor) InBand(score float64, level string) bool {
	band, ok := a.levels[level]
	if !ok {
		return true
	}
	return score >= band.Min && score <= band.Max
}

func (a *Assessor) band(level string) config.Band {
	if band, ok := a.levels[level]; ok {
		return band
	}
	return config.Band{Min: 0, Max: 1}
}

func calculateMetrics(text string) metrics {
	sentences := sentenceCount(text)
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return metrics{}
	}

	var complexWords, totalSyllables, technical int
	for _, word := range words {
		syllables := countSyllables(word)
		totalSyllables += syllables
		if syllables >= 3 {
			complexWords++
		}
		if _, ok := technicalTerms[word]; ok {
			technical++
		}
	}

	return metrics{
		avgSentenceLength:  float64(len(words)) / float64(sentences),
		complexWordRatio:   float64(complexWords) / float64(len(words)) * 100,
		syllableDensity:    float64(totalSyllables) / float64(len(words)),
		technicalTermRatio: float64(technical) / float64(len(words)) * 100,
	}
}

func sentenceCount(text string) int {
	n := len(sentenceRe.FindAllString(text, -1))
	if n == 0 {
		return 1
	}
	return n
}

// countSyllables approximates syllables by counting vowel groups.
func countSyllables(word string) int {
	word = strings.ToLower(word)
	syllables := 0
	prevWasVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune("aeiouy", r)
		if isVowel && !prevWasVowel {
			syllables++
		}
		prevWasVowel = isVowel
	}
	if strings.HasSuffix(word, "e") {
		syllables--
	}
	if syllables <= 0 {
		syllables = 1
	}
	return syllables
}
