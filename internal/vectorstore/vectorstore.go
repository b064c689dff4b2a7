package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"studybuddy/internal/config"
	"studybuddy/internal/models"
)

var (
	// ErrModelMismatch is returned when an existing store was built with a
	// different embedding model. Vectors from different models are not
	// comparable.
	ErrModelMismatch = errors.New("vector store was built with a different embedding model")

	// ErrCorrupted is returned when the persistent store directory cannot be
	// read. The remedy is Reset (or deleting the directory) and re-ingesting.
	ErrCorrupted = errors.New("vector store directory is corrupted")
)

const modelMarkerFile = "embedding_model"

// Store wraps a chromem-go database holding one collection of chunk vectors.
type Store struct {
	db             *chromem.DB
	collection     *chromem.Collection
	path           string
	collectionName string
	inMemory       bool
	encryptionKey  string
	model          string
	embedFunc      chromem.EmbeddingFunc
}

const compress = false

// New opens (or creates) the vector store for the given embedding model.
// embedFunc is used by chromem for query-by-text; pass nil when every
// document and query carries an explicit embedding.
func New(cfg *config.RAGConfig, model string, embedFunc chromem.EmbeddingFunc) (*Store, error) {
	s := &Store{
		path:           cfg.DBPath,
		collectionName: cfg.CollectionName,
		inMemory:       cfg.InMemory,
		encryptionKey:  cfg.EncryptionKey,
		model:          model,
		embedFunc:      embedFunc,
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) open() error {
	var err error
	if s.inMemory {
		s.db = chromem.NewDB()
	} else {
		if err := s.checkModelMarker(); err != nil {
			return err
		}
		s.db, err = chromem.NewPersistentDB(s.path, compress)
		if err != nil {
			return fmt.Errorf("%w: %v (reset %s and re-ingest to recover)", ErrCorrupted, err, s.path)
		}
	}

	meta := map[string]string{"embedding_model": s.model}
	s.collection, err = s.db.GetOrCreateCollection(s.collectionName, meta, s.embedFunc)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	return nil
}

// checkModelMarker enforces that a persistent store is only reused with the
// model that produced its vectors.
func (s *Store) checkModelMarker() error {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return err
	}
	marker := filepath.Join(s.path, modelMarkerFile)
	data, err := os.ReadFile(marker)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return os.WriteFile(marker, []byte(s.model), 0o644)
	case err != nil:
		return err
	}
	existing := strings.TrimSpace(string(data))
	if existing != "" && existing != s.model {
		return fmt.Errorf("%w: store has %q, configured %q", ErrModelMismatch, existing, s.model)
	}
	return nil
}

// Add stores documents with their embeddings.
func (s *Store) Add(ctx context.Context, docs []chromem.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query performs a similarity search. NResults is clamped to the collection
// size; an empty collection yields no results.
func (s *Store) Query(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, fmt.Errorf("either query text or embedding must be provided")
	}
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if opts.NResults <= 0 || opts.NResults > count {
		opts.NResults = count
	}
	results, err := s.collection.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

// Count returns the number of stored chunk vectors.
func (s *Store) Count() int {
	return s.collection.Count()
}

// DeleteByFilename removes all chunk vectors belonging to one document.
func (s *Store) DeleteByFilename(ctx context.Context, filename string) error {
	where := map[string]string{models.MetaFilename: filename}
	if err := s.collection.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}
	return nil
}

// DeleteCollection drops the whole collection and recreates it empty.
func (s *Store) DeleteCollection() error {
	if err := s.db.DeleteCollection(s.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	meta := map[string]string{"embedding_model": s.model}
	collection, err := s.db.GetOrCreateCollection(s.collectionName, meta, s.embedFunc)
	if err != nil {
		return fmt.Errorf("failed to recreate collection: %w", err)
	}
	s.collection = collection
	return nil
}

// Reset wipes the store directory and reopens an empty store. This is the
// documented recovery for a corrupted store.
func (s *Store) Reset() error {
	if !s.inMemory {
		log.Warn().Str("path", s.path).Msg("Resetting vector store directory")
		if err := os.RemoveAll(s.path); err != nil {
			return fmt.Errorf("failed to remove store directory: %w", err)
		}
	}
	return s.open()
}

// Export writes the collection to an encrypted file under the store path.
func (s *Store) Export(ctx context.Context) error {
	if s.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	filePath := filepath.Join(s.path, s.collectionName+".chromem")
	log.Debug().Str("file", filePath).Str("collection", s.collectionName).Msg("Exporting collection")
	if err := s.db.ExportToFile(filePath, compress, s.encryptionKey, s.collectionName); err != nil {
		return fmt.Errorf("failed to export collection: %w", err)
	}
	return nil
}

// Import loads a previously exported collection file.
func (s *Store) Import(ctx context.Context) error {
	filePath := filepath.Join(s.path, s.collectionName+".chromem")
	if err := s.db.ImportFromFile(filePath, s.encryptionKey); err != nil {
		return fmt.Errorf("failed to import collection: %w", err)
	}
	collection := s.db.GetCollection(s.collectionName, s.embedFunc)
	if collection == nil {
		return fmt.Errorf("imported file did not contain collection %q", s.collectionName)
	}
	s.collection = collection
	return nil
}
