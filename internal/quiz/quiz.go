package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"

	"studybuddy/internal/embedding"
	"studybuddy/internal/helper"
	"studybuddy/internal/models"
	"studybuddy/internal/vectorstore"
)

// ErrNoContent is returned when the knowledge base has nothing on the topic.
var ErrNoContent = errors.New("no content found for this topic")

const retrievalDepth = 10

var (
	capitalizedRe = regexp.MustCompile(`\b\p{Lu}\p{Ll}+\b`)

	questionStarters = []string{
		"What is", "How does", "Why is", "When did", "Where is",
		"Who was", "Which", "Explain", "Describe", "Define",
	}

	// ordered negations applied to make a statement false
	negations = [][2]string{
		{"is", "is not"},
		{"was", "was not"},
		{"can", "cannot"},
		{"will", "will not"},
		{"should", "should not"},
	}
)

// Generator builds quizzes from chunks retrieved for a topic.
type Generator struct {
	store       *vectorstore.Store
	embedder    *embeddings.EmbedderImpl
	defaultSize int
	rng         *rand.Rand
}

// NewGenerator wires a quiz generator. rng is injected so callers (and tests)
// control determinism.
func NewGenerator(store *vectorstore.Store, embedder *embeddings.EmbedderImpl, defaultSize int, rng *rand.Rand) *Generator {
	if defaultSize <= 0 {
		defaultSize = 5
	}
	return &Generator{store: store, embedder: embedder, defaultSize: defaultSize, rng: rng}
}

// Generate retrieves content about the topic and formats it into questions.
func (g *Generator) Generate(ctx context.Context, topic string, numQuestions int, quizType string) (*models.Quiz, error) {
	if numQuestions <= 0 {
		numQuestions = g.defaultSize
	}
	if quizType == "" {
		quizType = models.QuizTypeMixed
	}

	opts := chromem.QueryOptions{NResults: retrievalDepth}
	if g.embedder != nil {
		vec, err := embedding.EmbedText(ctx, g.embedder, topic)
		if err != nil {
			return nil, fmt.Errorf("embed topic: %w", err)
		}
		opts.QueryEmbedding = vec
	} else {
		opts.QueryText = topic
	}
	results, err := g.store.Query(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoContent
	}

	var parts []string
	for _, r := range results {
		parts = append(parts, r.Content)
	}
	content := strings.Join(parts, " ")

	questions, err := buildQuestions(g.rng, content, numQuestions, quizType)
	if err != nil {
		return nil, err
	}
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	return &models.Quiz{
		ID:        id,
		Topic:     topic,
		QuizType:  quizType,
		Questions: questions,
	}, nil
}

func buildQuestions(rng *rand.Rand, content string, n int, quizType string) ([]models.QuizItem, error) {
	switch quizType {
	case models.QuizTypeMultipleChoice:
		return generateMultipleChoice(rng, content, n), nil
	case models.QuizTypeTrueFalse:
		return generateTrueFalse(content, n), nil
	case models.QuizTypeShortAnswer:
		return generateShortAnswer(rng, content, n), nil
	case models.QuizTypeMixed:
		return generateMixed(rng, content, n), nil
	default:
		return nil, fmt.Errorf("unknown quiz type: %s", quizType)
	}
}

// splitSentences returns the content's sentences that are long enough to
// carry a question.
func splitSentences(content string) []string {
	var sentences []string
	for _, s := range strings.Split(content, ".") {
		s = strings.TrimSpace(s)
		if len(s) > 20 {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func generateMultipleChoice(rng *rand.Rand, content string, n int) []models.QuizItem {
	sentences := splitSentences(content)
	allTerms := capitalizedRe.FindAllString(content, -1)

	var questions []models.QuizItem
	for _, sentence := range sentences {
		if len(questions) >= n {
			break
		}
		terms := capitalizedRe.FindAllString(sentence, -1)
		if len(terms) == 0 {
			continue
		}
		keyTerm := terms[rng.Intn(len(terms))]
		questionText := strings.Replace(sentence, keyTerm, "____", 1)

		options := []string{keyTerm}
		for _, distractor := range shuffled(rng, allTerms) {
			if len(options) == 4 {
				break
			}
			if distractor != keyTerm && !contains(options, distractor) {
				options = append(options, distractor)
			}
		}
		for i := 0; len(options) < 4; i++ {
			options = append(options, fmt.Sprintf("None of these (%d)", i+1))
		}
		rng.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })

		optionMap := make(map[string]string, len(options))
		correct := ""
		for i, opt := range options {
			letter := string(rune('A' + i))
			optionMap[letter] = opt
			if opt == keyTerm {
				correct = letter
			}
		}

		questions = append(questions, models.QuizItem{
			Question:      "Fill in the blank: " + questionText,
			Options:       optionMap,
			CorrectAnswer: correct,
			Type:          models.QuizTypeMultipleChoice,
		})
	}
	return questions
}

func generateTrueFalse(content string, n int) []models.QuizItem {
	sentences := splitSentences(content)

	var questions []models.QuizItem
	for i, sentence := range sentences {
		if len(questions) >= n {
			break
		}
		isTrue := i%2 == 0
		questionText := sentence
		if !isTrue {
			modified := negateSentence(sentence)
			if modified == sentence {
				// could not falsify this one, keep it true
				isTrue = true
			} else {
				questionText = modified
			}
		}
		answer := "False"
		if isTrue {
			answer = "True"
		}
		questions = append(questions, models.QuizItem{
			Question:      "True or False: " + questionText,
			CorrectAnswer: answer,
			Type:          models.QuizTypeTrueFalse,
		})
	}
	return questions
}

func generateShortAnswer(rng *rand.Rand, content string, n int) []models.QuizItem {
	sentences := splitSentences(content)

	var questions []models.QuizItem
	for _, sentence := range sentences {
		if len(questions) >= n {
			break
		}
		words := strings.Fields(sentence)
		if len(words) <= 5 {
			continue
		}
		starter := questionStarters[rng.Intn(len(questionStarters))]
		keyConcept := strings.ToLower(strings.Join(words[:3], " "))
		questions = append(questions, models.QuizItem{
			Question:     fmt.Sprintf("%s %s?", starter, keyConcept),
			SampleAnswer: sentence,
			Type:         models.QuizTypeShortAnswer,
		})
	}
	return questions
}

func generateMixed(rng *rand.Rand, content string, n int) []models.QuizItem {
	mcCount := n / 3
	tfCount := n / 3
	saCount := n - mcCount - tfCount

	var questions []models.QuizItem
	questions = append(questions, generateMultipleChoice(rng, content, mcCount)...)
	questions = append(questions, generateTrueFalse(content, tfCount)...)
	questions = append(questions, generateShortAnswer(rng, content, saCount)...)
	rng.Shuffle(len(questions), func(i, j int) { questions[i], questions[j] = questions[j], questions[i] })
	return questions
}

// negateSentence flips the first negatable verb; returns the input unchanged
// when nothing applies.
func negateSentence(sentence string) string {
	lower := strings.ToLower(sentence)
	for _, pair := range negations {
		target := " " + pair[0] + " "
		if idx := strings.Index(lower, target); idx >= 0 {
			return sentence[:idx] + " " + pair[1] + " " + sentence[idx+len(target):]
		}
	}
	return sentence
}

func shuffled(rng *rand.Rand, items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

// Evaluate grades user answers against a quiz. Answers are keyed by the
// zero-based question index as a string.
func Evaluate(q *models.Quiz, answers map[string]string) *models.QuizReport {
	report := &models.QuizReport{TotalQuestions: len(q.Questions)}
	for i, question := range q.Questions {
		userAnswer := answers[fmt.Sprintf("%d", i)]

		var isCorrect bool
		correct := question.CorrectAnswer
		switch question.Type {
		case models.QuizTypeShortAnswer:
			correct = question.SampleAnswer
			isCorrect = evaluateShortAnswer(userAnswer, question.SampleAnswer)
		default:
			isCorrect = strings.EqualFold(strings.TrimSpace(userAnswer), question.CorrectAnswer)
		}
		if isCorrect {
			report.Score++
		}
		report.Results = append(report.Results, models.QuizAnswerResult{
			Question:      question.Question,
			UserAnswer:    userAnswer,
			CorrectAnswer: correct,
			IsCorrect:     isCorrect,
		})
	}
	if report.TotalQuestions > 0 {
		report.Percentage = float64(report.Score) / float64(report.TotalQuestions) * 100
	}
	report.Grade = gradeFor(report.Percentage)
	return report
}

// evaluateShortAnswer accepts an answer sharing at least 30% of the sample
// answer's significant keywords.
func evaluateShortAnswer(userAnswer, sampleAnswer string) bool {
	userWords := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(userAnswer)) {
		userWords[w] = struct{}{}
	}

	var keyWords, matched int
	seen := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(sampleAnswer)) {
		if len(w) <= 3 {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keyWords++
		if _, ok := userWords[w]; ok {
			matched++
		}
	}
	if keyWords == 0 {
		return false
	}
	return float64(matched) >= float64(keyWords)*0.3
}

func gradeFor(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}
