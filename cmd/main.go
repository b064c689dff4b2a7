package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"studybuddy/internal/config"
	"studybuddy/internal/difficulty"
	"studybuddy/internal/embedding"
	"studybuddy/internal/helper"
	"studybuddy/internal/models"
	"studybuddy/internal/parser"
	"studybuddy/internal/quiz"
	"studybuddy/internal/rag"
	"studybuddy/internal/registry"
	"studybuddy/internal/server"
	"studybuddy/internal/vectorstore"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Ingest a document file and exit")
	query := flag.String("query", "", "Ask a question and exit")
	quizTopic := flag.String("quiz", "", "Generate a quiz on a topic and exit")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	reset := flag.Bool("reset", false, "Wipe the vector store and document registry, then exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if !os.IsNotExist(err) || *configPath != configFilePath {
			log.Fatal().Err(err).Msg("Error loading config")
		}
		log.Warn().Str("path", *configPath).Msg("Config file not found, using defaults")
		cfg = config.Default()
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	ctx := context.Background()

	// reset runs before the store is opened: a corrupted store directory
	// cannot be opened, only removed
	if *reset {
		resetData(ctx, cfg)
		return
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	store, err := openStore(cfg, embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}

	assessor := difficulty.NewAssessor(&cfg.Difficulty)
	engine := rag.NewEngine(store, embedder, assessor, cfg)
	quizzes := quiz.NewGenerator(store, embedder, cfg.Quiz.DefaultSize, rand.New(rand.NewSource(time.Now().UnixNano())))

	switch {
	case *filePath != "":
		ingestFile(ctx, cfg, store, embedder, *filePath)
	case *query != "":
		runQuery(ctx, engine, *query)
	case *quizTopic != "":
		runQuiz(ctx, quizzes, *quizTopic)
	default:
		runServer(ctx, cfg, store, embedder, engine, quizzes)
	}
}

// openStore wires the vector store to the embedder so that plain-text
// queries and documents without precomputed vectors still get embedded.
func openStore(cfg *config.Config, embedder *embeddings.EmbedderImpl) (*vectorstore.Store, error) {
	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	return vectorstore.New(&cfg.RAG, cfg.EmbedLLM.Model, embedFunc)
}

func ingestFile(ctx context.Context, cfg *config.Config, store *vectorstore.Store, embedder *embeddings.EmbedderImpl, filePath string) {
	parsed, err := parser.Parse(filePath, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	log.Info().Str("filename", parsed.Filename).Int("chunks", len(parsed.Chunks)).Int("words", parsed.WordCount).Msg("Parsed document")

	chunkEmbeddings, err := embedding.EmbedChunks(ctx, embedder, parsed.Filename, parsed.Chunks)
	if err != nil {
		log.Fatal().Err(err).Msg("Error generating embeddings")
	}

	docs := make([]chromem.Document, len(chunkEmbeddings))
	for i, ce := range chunkEmbeddings {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("%s-%d", ce.SourceFilename, ce.ChunkID),
			Content: ce.Content,
			Metadata: map[string]string{
				models.MetaFilename: ce.SourceFilename,
				models.MetaFileType: parsed.FileType,
				models.MetaChunkID:  strconv.Itoa(ce.ChunkID),
				models.MetaPage:     strconv.Itoa(ce.PageNumber),
			},
			Embedding: ce.Embedding,
		}
	}
	if err := store.Add(ctx, docs); err != nil {
		log.Fatal().Err(err).Msg("Error storing document")
	}
	log.Info().Int("total_chunks", store.Count()).Msg("Document ingested")

	if cfg.RAG.EncryptionKey != "" {
		if err := store.Export(ctx); err != nil {
			log.Fatal().Err(err).Msg("Error exporting collection")
		}
		log.Info().Msg("Exported collection snapshot")
	}
}

func runQuery(ctx context.Context, engine *rag.Engine, query string) {
	answer, err := engine.Query(ctx, query, 0, "")
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, src := range answer.Sources {
		fmt.Printf("[%s] %.3f %s\n", src.Filename, src.Similarity, src.ChunkID)
	}
	fmt.Println()

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", answer.Response)
}

func runQuiz(ctx context.Context, quizzes *quiz.Generator, topic string) {
	generated, err := quizzes.Generate(ctx, topic, 0, models.QuizTypeMixed)
	if err != nil {
		log.Fatal().Err(err).Msg("Error generating quiz")
	}
	helper.PrettyPrint(generated)
}

// resetData wipes the vector store directory and drops the document registry
// table. This is the documented recovery for a corrupted vector store.
func resetData(ctx context.Context, cfg *config.Config) {
	log.Warn().Str("path", cfg.RAG.DBPath).Msg("Removing vector store directory")
	if err := os.RemoveAll(cfg.RAG.DBPath); err != nil {
		log.Fatal().Err(err).Msg("Error removing vector store directory")
	}
	if cfg.Database.URL != "" {
		sqldb, err := registry.ConnectDB(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Error connecting to database")
		}
		db := registry.NewDB(sqldb, cfg.Database.Debug)
		if err := registry.DropDocuments(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Error dropping document registry")
		}
	}
	log.Info().Msg("Reset complete, re-ingest your documents")
}

func runServer(ctx context.Context, cfg *config.Config, store *vectorstore.Store, embedder *embeddings.EmbedderImpl, engine *rag.Engine, quizzes *quiz.Generator) {
	srv := buildServer(ctx, cfg, store, embedder, engine, quizzes)
	log.Info().Str("addr", cfg.Server.Addr).Msg("Starting server")
	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func buildServer(ctx context.Context, cfg *config.Config, store *vectorstore.Store, embedder *embeddings.EmbedderImpl, engine *rag.Engine, quizzes *quiz.Generator) *server.Server {
	if cfg.Database.URL == "" {
		log.Warn().Msg("No database configured, document registry disabled")
		return server.New(cfg, nil, store, embedder, engine, quizzes)
	}

	sqldb, err := registry.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	db := registry.NewDB(sqldb, cfg.Database.Debug)
	if err := registry.InitDB(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}
	return server.New(cfg, db, store, embedder, engine, quizzes)
}
