package models

import "time"

// Document is the metadata record for one uploaded study material.
type Document struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	UploadTime time.Time `json:"upload_time"`
	ChunkCount int       `json:"chunk_count"`
	WordCount  int       `json:"word_count"`
}

// Chunk is a contiguous span of a document's cleaned text. StartOffset is the
// byte offset into the cleaned text and Overlap the number of bytes shared
// with the previous chunk.
type Chunk struct {
	DocumentID  int64  `json:"document_id"`
	Content     string `json:"content"`
	StartOffset int    `json:"start_offset"`
	Overlap     int    `json:"overlap"`
	ChunkID     int    `json:"chunk_id"`
	PageNumber  int    `json:"page_number"`
}

// ChunkEmbedding pairs a chunk with its vector. Vectors are only comparable
// when produced by the same embedding model.
type ChunkEmbedding struct {
	Content        string
	Embedding      []float32
	SourceFilename string
	PageNumber     int
	ChunkID        int
}

// SourceChunk is one retrieval hit returned to the user.
type SourceChunk struct {
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
	Filename   string  `json:"filename"`
	ChunkID    string  `json:"chunk_id"`
}

// Answer is the result of a RAG query. Not persisted.
type Answer struct {
	Question           string        `json:"question"`
	Response           string        `json:"response"`
	Sources            []SourceChunk `json:"sources"`
	UnderstandingLevel string        `json:"understanding_level,omitempty"`
	SuggestedActions   []string      `json:"suggested_actions,omitempty"`
}

// QuizItem is one generated question.
type QuizItem struct {
	Question      string            `json:"question"`
	Options       map[string]string `json:"options,omitempty"`
	CorrectAnswer string            `json:"correct_answer,omitempty"`
	SampleAnswer  string            `json:"sample_answer,omitempty"`
	Type          string            `json:"type"`
}

// Quiz is a generated question set for one topic.
type Quiz struct {
	ID        string     `json:"id"`
	Topic     string     `json:"topic"`
	QuizType  string     `json:"quiz_type"`
	Questions []QuizItem `json:"questions"`
}

// QuizAnswerResult is the per-question outcome of an evaluation.
type QuizAnswerResult struct {
	Question      string `json:"question"`
	UserAnswer    string `json:"user_answer"`
	CorrectAnswer string `json:"correct_answer"`
	IsCorrect     bool   `json:"is_correct"`
}

// QuizReport is the graded result of a submitted quiz.
type QuizReport struct {
	Score          int                `json:"score"`
	TotalQuestions int                `json:"total_questions"`
	Percentage     float64            `json:"percentage"`
	Grade          string             `json:"grade"`
	Results        []QuizAnswerResult `json:"results"`
}

// StudyStats summarizes the knowledge base and query activity.
type StudyStats struct {
	DocumentCount int `json:"document_count"`
	ChunkCount    int `json:"chunk_count"`
	QueryCount    int `json:"query_count"`
}
