package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/uptrace/bun"

	"studybuddy/internal/config"
	"studybuddy/internal/embedding"
	"studybuddy/internal/helper"
	"studybuddy/internal/models"
	"studybuddy/internal/parser"
	"studybuddy/internal/quiz"
	"studybuddy/internal/rag"
	"studybuddy/internal/registry"
	"studybuddy/internal/vectorstore"
)

// Server bundles the pipeline components behind the HTTP API.
type Server struct {
	cfg      *config.Config
	db       *bun.DB // nil when running without the document registry
	store    *vectorstore.Store
	embedder *embeddings.EmbedderImpl
	engine   *rag.Engine
	quizzes  *quiz.Generator
}

func New(cfg *config.Config, db *bun.DB, store *vectorstore.Store, embedder *embeddings.EmbedderImpl, engine *rag.Engine, quizzes *quiz.Generator) *Server {
	return &Server{
		cfg:      cfg,
		db:       db,
		store:    store,
		embedder: embedder,
		engine:   engine,
		quizzes:  quizzes,
	}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(s.cfg.Server.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", s.handleHealth)

	v1 := router.Group("/api/v1")
	v1.POST("/documents", s.handleUpload)
	v1.GET("/documents", s.handleListDocuments)
	v1.DELETE("/documents/:id", s.handleDeleteDocument)
	v1.POST("/ask", s.handleAsk)
	v1.POST("/ask/simple", s.handleAskSimple)
	v1.GET("/gaps", s.handleGaps)
	v1.POST("/quiz", s.handleQuiz)
	v1.POST("/quiz/evaluate", s.handleQuizEvaluate)
	v1.GET("/stats", s.handleStats)

	return router
}

func (s *Server) Run() error {
	return s.Router().Run(s.cfg.Server.Addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	respondOK(c, gin.H{"status": "ok"})
}

// handleUpload accepts a multipart form with "file", stores it, and runs the
// ingestion pipeline: parse -> chunk -> embed -> vector store -> registry.
func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "missing file")
		return
	}
	if file.Size > s.cfg.Server.MaxUploadBytes {
		respondError(c, http.StatusBadRequest, CodeFileTooLarge,
			fmt.Sprintf("file too large (max %d bytes)", s.cfg.Server.MaxUploadBytes))
		return
	}
	if !parser.IsSupported(file.Filename) {
		respondError(c, http.StatusBadRequest, CodeUnsupportedFile,
			"unsupported file type: "+filepath.Ext(file.Filename))
		return
	}

	if err := helper.CreateFolder(s.cfg.Server.UploadDir); err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternalServer, "failed to prepare upload directory")
		return
	}
	dst := filepath.Join(s.cfg.Server.UploadDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternalServer, "failed to save file")
		return
	}

	doc, err := s.ingest(c, dst)
	if err != nil {
		switch {
		case errors.Is(err, parser.ErrUnsupportedType):
			respondError(c, http.StatusBadRequest, CodeUnsupportedFile, err.Error())
		case errors.Is(err, vectorstore.ErrCorrupted):
			respondError(c, http.StatusInternalServerError, CodeVectorStore, err.Error())
		default:
			respondError(c, http.StatusInternalServerError, CodeInternalServer, "ingest failed: "+err.Error())
		}
		return
	}
	respondOK(c, doc)
}

func (s *Server) ingest(c *gin.Context, path string) (*models.Document, error) {
	ctx := c.Request.Context()

	parsed, err := parser.Parse(path, s.cfg)
	if err != nil {
		return nil, err
	}
	if len(parsed.Chunks) == 0 {
		return nil, fmt.Errorf("document contains no extractable text")
	}

	// drop any previous version of this document before re-ingesting
	if err := s.store.DeleteByFilename(ctx, parsed.Filename); err != nil {
		return nil, err
	}

	docs := make([]chromem.Document, len(parsed.Chunks))
	for i, chunk := range parsed.Chunks {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("%s-%d", parsed.Filename, chunk.ChunkID),
			Content: chunk.Content,
			Metadata: map[string]string{
				models.MetaFilename: parsed.Filename,
				models.MetaFileType: parsed.FileType,
				models.MetaChunkID:  strconv.Itoa(chunk.ChunkID),
				models.MetaPage:     strconv.Itoa(chunk.PageNumber),
			},
		}
	}
	if s.embedder != nil {
		chunkEmbeddings, err := embedding.EmbedChunks(ctx, s.embedder, parsed.Filename, parsed.Chunks)
		if err != nil {
			return nil, err
		}
		for i := range docs {
			docs[i].Embedding = chunkEmbeddings[i].Embedding
		}
	}
	if err := s.store.Add(ctx, docs); err != nil {
		return nil, err
	}

	doc := models.Document{
		Filename:   parsed.Filename,
		FileType:   parsed.FileType,
		ChunkCount: len(parsed.Chunks),
		WordCount:  parsed.WordCount,
	}
	if s.db != nil {
		doc, err = registry.CreateDocument(ctx, s.db, parsed.Filename, parsed.FileType, len(parsed.Chunks), parsed.WordCount)
		if err != nil {
			return nil, err
		}
	}
	log.Info().Str("filename", parsed.Filename).Int("chunks", len(parsed.Chunks)).Msg("Ingested document")
	return &doc, nil
}

func (s *Server) handleListDocuments(c *gin.Context) {
	if s.db == nil {
		respondOK(c, []models.Document{})
		return
	}
	docs, err := registry.ListDocuments(c.Request.Context(), s.db)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternalServer, "list documents failed")
		return
	}
	respondOK(c, docs)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	if s.db == nil {
		respondError(c, http.StatusNotFound, CodeNotFound, "document registry is not configured")
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "invalid document id")
		return
	}
	doc, err := registry.GetDocument(c.Request.Context(), s.db, id)
	if err != nil {
		respondError(c, http.StatusNotFound, CodeNotFound, "document not found")
		return
	}
	if err := s.store.DeleteByFilename(c.Request.Context(), doc.Filename); err != nil {
		respondError(c, http.StatusInternalServerError, CodeVectorStore, "failed to delete document vectors")
		return
	}
	if err := registry.DeleteDocument(c.Request.Context(), s.db, id); err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternalServer, "delete document failed")
		return
	}
	respondOK(c, gin.H{"deleted_document_id": id})
}

type askRequest struct {
	Question   string `json:"question" binding:"required"`
	TopK       int    `json:"top_k"`
	Difficulty string `json:"difficulty"`
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "invalid request payload")
		return
	}
	answer, err := s.engine.Query(c.Request.Context(), req.Question, req.TopK, req.Difficulty)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternalServer, "ask failed: "+err.Error())
		return
	}
	respondOK(c, answer)
}

func (s *Server) handleAskSimple(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "invalid request payload")
		return
	}
	answer, err := s.engine.ExplainSimply(c.Request.Context(), req.Question)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternalServer, "ask failed: "+err.Error())
		return
	}
	respondOK(c, answer)
}

func (s *Server) handleGaps(c *gin.Context) {
	respondOK(c, gin.H{"knowledge_gaps": s.engine.KnowledgeGaps()})
}

type quizRequest struct {
	Topic        string `json:"topic" binding:"required"`
	NumQuestions int    `json:"num_questions"`
	QuizType     string `json:"quiz_type"`
}

func (s *Server) handleQuiz(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "invalid request payload")
		return
	}
	generated, err := s.quizzes.Generate(c.Request.Context(), req.Topic, req.NumQuestions, req.QuizType)
	if err != nil {
		switch {
		case errors.Is(err, quiz.ErrNoContent):
			respondError(c, http.StatusNotFound, CodeNotFound, err.Error())
		case strings.Contains(err.Error(), "unknown quiz type"):
			respondError(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		default:
			respondError(c, http.StatusInternalServerError, CodeInternalServer, "quiz generation failed: "+err.Error())
		}
		return
	}
	respondOK(c, generated)
}

type quizEvaluateRequest struct {
	Quiz    models.Quiz       `json:"quiz" binding:"required"`
	Answers map[string]string `json:"answers"`
}

func (s *Server) handleQuizEvaluate(c *gin.Context) {
	var req quizEvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "invalid request payload")
		return
	}
	if len(req.Quiz.Questions) == 0 {
		respondError(c, http.StatusBadRequest, CodeBadRequest, "quiz has no questions")
		return
	}
	respondOK(c, quiz.Evaluate(&req.Quiz, req.Answers))
}

func (s *Server) handleStats(c *gin.Context) {
	stats := models.StudyStats{
		ChunkCount: s.store.Count(),
		QueryCount: s.engine.QueryCount(),
	}
	if s.db != nil {
		docs, err := registry.ListDocuments(c.Request.Context(), s.db)
		if err != nil {
			respondError(c, http.StatusInternalServerError, CodeInternalServer, "stats failed")
			return
		}
		stats.DocumentCount = len(docs)
	}
	respondOK(c, stats)
}
