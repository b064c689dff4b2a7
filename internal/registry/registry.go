package registry

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"studybuddy/internal/config"
	"studybuddy/internal/models"
)

// Document is the registry row for one ingested study material. Chunk vectors
// live in the vector store; this table only tracks document identity.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Filename      string    `bun:"filename,notnull,unique"`
	FileType      string    `bun:"file_type,notnull"`
	UploadTime    time.Time `bun:"upload_time,notnull"`
	ChunkCount    int       `bun:"chunk_count,notnull"`
	WordCount     int       `bun:"word_count,notnull"`
}

func (d *Document) toModel() models.Document {
	return models.Document{
		ID:         d.ID,
		Filename:   d.Filename,
		FileType:   d.FileType,
		UploadTime: d.UploadTime,
		ChunkCount: d.ChunkCount,
		WordCount:  d.WordCount,
	}
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.URL + "?sslmode=disable"
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(cfg.Key))), nil
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	return err
}

// CreateDocument records an ingested document and returns its row.
func CreateDocument(ctx context.Context, db *bun.DB, filename, fileType string, chunkCount, wordCount int) (models.Document, error) {
	doc := &Document{
		Filename:   filename,
		FileType:   fileType,
		UploadTime: time.Now().UTC(),
		ChunkCount: chunkCount,
		WordCount:  wordCount,
	}
	if _, err := db.NewInsert().
		Model(doc).
		On("CONFLICT (filename) DO UPDATE").
		Set("file_type = EXCLUDED.file_type").
		Set("upload_time = EXCLUDED.upload_time").
		Set("chunk_count = EXCLUDED.chunk_count").
		Set("word_count = EXCLUDED.word_count").
		Returning("*").
		Exec(ctx); err != nil {
		return models.Document{}, err
	}
	return doc.toModel(), nil
}

func ListDocuments(ctx context.Context, db *bun.DB) ([]models.Document, error) {
	var rows []Document
	if err := db.NewSelect().Model(&rows).Order("upload_time DESC").Scan(ctx); err != nil {
		return nil, err
	}
	docs := make([]models.Document, len(rows))
	for i := range rows {
		docs[i] = rows[i].toModel()
	}
	return docs, nil
}

func GetDocument(ctx context.Context, db *bun.DB, id int64) (models.Document, error) {
	var row Document
	if err := db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return models.Document{}, err
	}
	return row.toModel(), nil
}

// DeleteDocument removes the registry row. The caller is responsible for
// removing the document's vectors from the vector store.
func DeleteDocument(ctx context.Context, db *bun.DB, id int64) error {
	_, err := db.NewDelete().Model((*Document)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}
