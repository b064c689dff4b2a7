package rag

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"studybuddy/internal/config"
	"studybuddy/internal/difficulty"
	"studybuddy/internal/embedding"
	"studybuddy/internal/llmservice"
	"studybuddy/internal/models"
	"studybuddy/internal/vectorstore"
)

const (
	simpleRetrievalDepth = 2
	extractiveMaxChars   = 500
	minHistoryForGaps    = 5
	weakAreaThreshold    = 3
)

const noMaterialMessage = "I couldn't find relevant information in your study materials. " +
	"Try uploading more documents or rephrasing your question."

var topicWordRe = regexp.MustCompile(`\b\w+\b`)

var (
	beginnerIndicators = []string{"what", "is", "define", "explain", "basic", "simple"}
	advancedIndicators = []string{"analyze", "compare", "evaluate", "synthesize", "critique"}
)

// Engine answers questions from the ingested study materials.
type Engine struct {
	store    *vectorstore.Store
	embedder *embeddings.EmbedderImpl
	assessor *difficulty.Assessor
	cfg      *config.Config

	mu      sync.Mutex
	history []string
}

func NewEngine(store *vectorstore.Store, embedder *embeddings.EmbedderImpl, assessor *difficulty.Assessor, cfg *config.Config) *Engine {
	return &Engine{store: store, embedder: embedder, assessor: assessor, cfg: cfg}
}

// Query embeds the question, retrieves the top matching chunks, optionally
// filters them by difficulty level, and composes an answer.
func (e *Engine) Query(ctx context.Context, question string, topK int, level string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}
	e.recordQuery(question)

	if topK <= 0 {
		topK = e.cfg.RAG.TopK
	}
	results, err := e.retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	if level != "" && e.assessor != nil {
		results = e.filterByDifficulty(results, level)
	}

	understanding := assessUnderstanding(question)
	answer := &models.Answer{
		Question:           question,
		Sources:            toSources(results),
		UnderstandingLevel: understanding,
		SuggestedActions:   suggestActions(understanding),
	}
	answer.Response, err = e.compose(ctx, question, results)
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// ExplainSimply answers with a simplified, beginner-level explanation.
func (e *Engine) ExplainSimply(ctx context.Context, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}
	e.recordQuery(question)

	results, err := e.retrieve(ctx, question, simpleRetrievalDepth)
	if err != nil {
		return nil, err
	}
	answer := &models.Answer{
		Question:           question,
		Sources:            toSources(results),
		UnderstandingLevel: models.LevelBeginner,
	}
	if len(results) == 0 {
		answer.Response = "I couldn't find information about that topic. Try uploading more study materials!"
		return answer, nil
	}

	contextText := joinContents(results)
	if e.chatConfigured() {
		prompt := fmt.Sprintf(models.SimplifyPromptTemplate, contextText, question)
		response, err := llmservice.Complete(ctx, &e.cfg.ChatLLM, prompt)
		if err == nil && response != "" {
			answer.Response = response
			return answer, nil
		}
		log.Warn().Err(err).Msg("LLM simplification failed, falling back to extractive answer")
	}
	answer.Response = simplifyContext(contextText)
	return answer, nil
}

// KnowledgeGaps inspects the query history for heavily repeated topics.
func (e *Engine) KnowledgeGaps() []string {
	e.mu.Lock()
	history := make([]string, len(e.history))
	copy(history, e.history)
	e.mu.Unlock()

	if len(history) < minHistoryForGaps {
		return []string{"Upload more documents and ask more questions to identify knowledge gaps!"}
	}
	return identifyWeakAreas(extractTopics(history))
}

// QueryCount returns how many questions have been asked this session.
func (e *Engine) QueryCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

func (e *Engine) recordQuery(question string) {
	e.mu.Lock()
	e.history = append(e.history, question)
	e.mu.Unlock()
}

func (e *Engine) retrieve(ctx context.Context, question string, topK int) ([]chromem.Result, error) {
	opts := chromem.QueryOptions{NResults: topK}
	if e.embedder != nil {
		vec, err := embedding.EmbedText(ctx, e.embedder, question)
		if err != nil {
			return nil, fmt.Errorf("embed question: %w", err)
		}
		opts.QueryEmbedding = vec
	} else {
		opts.QueryText = question
	}
	return e.store.Query(ctx, opts)
}

func (e *Engine) filterByDifficulty(results []chromem.Result, level string) []chromem.Result {
	var filtered []chromem.Result
	for _, r := range results {
		if e.assessor.InBand(e.assessor.Score(r.Content), level) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// compose builds the answer text: via the chat LLM when one is configured,
// otherwise extractively from the top chunks.
func (e *Engine) compose(ctx context.Context, question string, results []chromem.Result) (string, error) {
	if len(results) == 0 {
		return noMaterialMessage, nil
	}
	contextText := joinContents(results)

	if e.chatConfigured() {
		prompt := fmt.Sprintf(models.AnswerPromptTemplate, contextText, question)
		response, err := llmservice.Complete(ctx, &e.cfg.ChatLLM, prompt)
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		return response, nil
	}

	return extractiveAnswer(contextText), nil
}

func (e *Engine) chatConfigured() bool {
	return e.cfg != nil && e.cfg.ChatLLM.Model != ""
}

func joinContents(results []chromem.Result) string {
	limit := len(results)
	if limit > 3 {
		limit = 3
	}
	var parts []string
	for _, r := range results[:limit] {
		parts = append(parts, r.Content)
	}
	return strings.Join(parts, " ")
}

func toSources(results []chromem.Result) []models.SourceChunk {
	sources := make([]models.SourceChunk, len(results))
	for i, r := range results {
		sources[i] = models.SourceChunk{
			Content:    r.Content,
			Similarity: r.Similarity,
			Filename:   r.Metadata[models.MetaFilename],
			ChunkID:    r.ID,
		}
	}
	return sources
}

func extractiveAnswer(contextText string) string {
	if len(contextText) > extractiveMaxChars {
		contextText = contextText[:extractiveMaxChars] + "..."
	}
	return "Based on your study materials:\n\n" + contextText
}

// simplifyContext keeps the short sentences of the context, the ones a
// beginner can follow.
func simplifyContext(contextText string) string {
	var simple []string
	for _, sentence := range strings.Split(contextText, ".") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if len(strings.Fields(sentence)) < 20 {
			simple = append(simple, sentence)
		}
		if len(simple) == 3 {
			break
		}
	}
	if len(simple) == 0 {
		if len(contextText) > 200 {
			contextText = contextText[:200] + "..."
		}
		return "Let me explain this in simple terms:\n\n" + contextText
	}
	return "Here's a simple explanation:\n\n" + strings.Join(simple, ". ") + "."
}

// assessUnderstanding guesses the asker's level from the question wording.
func assessUnderstanding(question string) string {
	words := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(question)) {
		words[strings.Trim(w, "?.,!")] = struct{}{}
	}

	var beginnerCount, advancedCount int
	for _, w := range beginnerIndicators {
		if _, ok := words[w]; ok {
			beginnerCount++
		}
	}
	for _, w := range advancedIndicators {
		if _, ok := words[w]; ok {
			advancedCount++
		}
	}

	switch {
	case advancedCount > beginnerCount:
		return models.LevelAdvanced
	case beginnerCount > 0:
		return models.LevelBeginner
	default:
		return models.LevelIntermediate
	}
}

func suggestActions(level string) []string {
	switch level {
	case models.LevelBeginner:
		return []string{
			"Try asking for a more detailed explanation",
			"Request examples to illustrate the concept",
		}
	case models.LevelIntermediate:
		return []string{
			"Ask for related concepts to explore",
			"Request practice questions on this topic",
		}
	default:
		return []string{
			"Ask for critical analysis of this topic",
			"Request connections to other advanced concepts",
		}
	}
}

// extractTopics counts significant words across the query history.
func extractTopics(queries []string) map[string]int {
	counts := map[string]int{}
	for _, query := range queries {
		for _, word := range topicWordRe.FindAllString(strings.ToLower(query), -1) {
			if len(word) > 3 {
				counts[word]++
			}
		}
	}
	return counts
}

// identifyWeakAreas flags the most-repeated topics as candidates for review.
func identifyWeakAreas(topics map[string]int) []string {
	type topicCount struct {
		topic string
		count int
	}
	sorted := make([]topicCount, 0, len(topics))
	for topic, count := range topics {
		sorted = append(sorted, topicCount{topic, count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].topic < sorted[j].topic
	})

	var weakAreas []string
	for i, tc := range sorted {
		if i == 5 {
			break
		}
		if tc.count >= weakAreaThreshold {
			weakAreas = append(weakAreas,
				fmt.Sprintf("You've asked about %q %d times - consider reviewing this topic", tc.topic, tc.count))
		}
	}
	if len(weakAreas) == 0 {
		return []string{"No specific weak areas identified yet"}
	}
	return weakAreas
}
