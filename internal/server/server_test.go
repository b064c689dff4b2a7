package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"studybuddy/internal/config"
	"studybuddy/internal/difficulty"
	"studybuddy/internal/quiz"
	"studybuddy/internal/rag"
	"studybuddy/internal/vectorstore"
)

// hashEmbed is a deterministic local embedding for tests.
func hashEmbed(_ context.Context, text string) ([]float32, error) {
	const dim = 16
	raw := make([]float64, dim)
	for i := 0; i < len(text); i++ {
		raw[i%dim] += float64(text[i]) * float64(i+1)
	}
	var norm float64
	for _, v := range raw {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	vec := make([]float32, dim)
	for i, v := range raw {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.GinMode = gin.TestMode
	cfg.Server.UploadDir = t.TempDir()
	cfg.RAG.InMemory = true
	cfg.RAG.ChunkSize = 200
	cfg.RAG.ChunkOverlap = 40

	store, err := vectorstore.New(&cfg.RAG, "test-model", hashEmbed)
	if err != nil {
		t.Fatalf("vectorstore.New() error = %v", err)
	}
	assessor := difficulty.NewAssessor(&cfg.Difficulty)
	engine := rag.NewEngine(store, nil, assessor, cfg)
	quizzes := quiz.NewGenerator(store, nil, cfg.Quiz.DefaultSize, rand.New(rand.NewSource(42)))
	return New(cfg, nil, store, nil, engine, quizzes)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func uploadFile(t *testing.T, router *gin.Engine, filename, content string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestHealthz(t *testing.T) {
	router := testServer(t).Router()
	rec, resp := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Code != CodeOK {
		t.Errorf("code = %d, want %d", resp.Code, CodeOK)
	}
}

func TestUploadUnsupportedType(t *testing.T) {
	router := testServer(t).Router()
	rec, resp := uploadFile(t, router, "slides.pptx", "binary junk")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Code != CodeUnsupportedFile {
		t.Errorf("code = %d, want %d", resp.Code, CodeUnsupportedFile)
	}
}

func TestUploadTooLarge(t *testing.T) {
	srv := testServer(t)
	srv.cfg.Server.MaxUploadBytes = 10
	router := srv.Router()
	rec, resp := uploadFile(t, router, "notes.txt", strings.Repeat("a", 100))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Code != CodeFileTooLarge {
		t.Errorf("code = %d, want %d", resp.Code, CodeFileTooLarge)
	}
}

func TestUploadMissingFile(t *testing.T) {
	router := testServer(t).Router()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadThenAsk(t *testing.T) {
	srv := testServer(t)
	router := srv.Router()

	content := "Photosynthesis converts light energy into chemical energy. " +
		"Plants use chlorophyll to capture sunlight in their leaves."
	rec, _ := uploadFile(t, router, "biology.txt", content)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if srv.store.Count() == 0 {
		t.Fatal("vector store is empty after upload")
	}

	saved := filepath.Join(srv.cfg.Server.UploadDir, "biology.txt")
	if _, err := os.Stat(saved); err != nil {
		t.Errorf("uploaded file not saved: %v", err)
	}

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/ask", map[string]interface{}{
		"question": "Photosynthesis converts light energy into chemical energy.",
		"top_k":    1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ask status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	if !strings.Contains(string(data), "Photosynthesis") {
		t.Errorf("answer does not mention the ingested material: %s", data)
	}
	if !strings.Contains(string(data), "biology.txt") {
		t.Errorf("answer sources do not name the document: %s", data)
	}
}

func TestAskValidation(t *testing.T) {
	router := testServer(t).Router()
	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/ask", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Code != CodeBadRequest {
		t.Errorf("code = %d, want %d", resp.Code, CodeBadRequest)
	}
}

func TestQuizWithoutContent(t *testing.T) {
	router := testServer(t).Router()
	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/quiz", map[string]interface{}{
		"topic": "thermodynamics",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp.Code != CodeNotFound {
		t.Errorf("code = %d, want %d", resp.Code, CodeNotFound)
	}
}

func TestQuizAndEvaluate(t *testing.T) {
	srv := testServer(t)
	router := srv.Router()

	content := "Entropy always increases in an isolated system. " +
		"Temperature measures the average kinetic energy of particles. " +
		"Pressure is force applied per unit of area on a surface."
	if rec, _ := uploadFile(t, router, "physics.txt", content); rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/quiz", map[string]interface{}{
		"topic":         "entropy",
		"num_questions": 2,
		"quiz_type":     "true_false",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("quiz status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal quiz: %v", err)
	}

	var generated map[string]interface{}
	if err := json.Unmarshal(data, &generated); err != nil {
		t.Fatalf("decode quiz: %v", err)
	}

	rec, resp = doJSON(t, router, http.MethodPost, "/api/v1/quiz/evaluate", map[string]interface{}{
		"quiz":    generated,
		"answers": map[string]string{"0": "True", "1": "True"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate status = %d, body = %s", rec.Code, rec.Body.String())
	}
	report, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal report: %v", err)
	}
	if !strings.Contains(string(report), "grade") {
		t.Errorf("evaluate response missing grade: %s", report)
	}
}

func TestQuizRejectsUnknownType(t *testing.T) {
	srv := testServer(t)
	router := srv.Router()
	if rec, _ := uploadFile(t, router, "notes.txt", "The mitochondria is the powerhouse of the cell."); rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}
	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/quiz", map[string]interface{}{
		"topic":     "cells",
		"quiz_type": "essay",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Code != CodeBadRequest {
		t.Errorf("code = %d, want %d", resp.Code, CodeBadRequest)
	}
}

func TestStatsAndGaps(t *testing.T) {
	srv := testServer(t)
	router := srv.Router()

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	if !strings.Contains(string(data), "query_count") {
		t.Errorf("stats payload = %s", data)
	}

	rec, resp = doJSON(t, router, http.MethodGet, "/api/v1/gaps", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("gaps status = %d", rec.Code)
	}
	data, _ = json.Marshal(resp.Data)
	if !strings.Contains(string(data), "ask more questions") {
		t.Errorf("gaps payload = %s", data)
	}
}

func TestListDocumentsWithoutRegistry(t *testing.T) {
	router := testServer(t).Router()
	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/documents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	if string(data) != "[]" {
		t.Errorf("documents payload = %s, want empty list", data)
	}
}
