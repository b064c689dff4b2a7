package models

// Quiz question types.
const (
	QuizTypeMultipleChoice = "multiple_choice"
	QuizTypeTrueFalse      = "true_false"
	QuizTypeShortAnswer    = "short_answer"
	QuizTypeMixed          = "mixed"
)

// Difficulty levels.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// Vector store metadata keys.
const (
	MetaFilename = "filename"
	MetaFileType = "file_type"
	MetaChunkID  = "chunk_id"
	MetaPage     = "page"
)

var (
	AnswerPromptTemplate = `You are a study assistant. Use only the provided study material to answer the question.
<material>
%s
</material>
Question: %s
Answer concisely and cite nothing outside the material.
`

	SimplifyPromptTemplate = `Explain the answer to the question below in plain language a beginner can follow, using only the provided study material.
<material>
%s
</material>
Question: %s
`
)
