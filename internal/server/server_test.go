package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/docqa/config"
	"github.com/mohammad-safakhou/docqa/internal/chunker"
	"github.com/mohammad-safakhou/docqa/internal/index/memory"
	"github.com/mohammad-safakhou/docqa/internal/pipeline"
	"github.com/mohammad-safakhou/docqa/internal/store"
	"github.com/mohammad-safakhou/docqa/internal/uploads"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) CreateEmbedding(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func newTestServer(t *testing.T, llm *stubLLM) *echo.Echo {
	t.Helper()
	ch, err := chunker.New(chunker.Config{Size: 1000})
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	idx := memory.NewStorage(filepath.Join(t.TempDir(), "index.json"))
	pipe := pipeline.New(ch, stubEmbedder{}, idx, pipeline.NewSynthesizer(llm), nil, pipeline.Config{TopK: 3})

	uploadStorage, err := uploads.NewStorage(config.UploadsConfig{
		Dir:               t.TempDir(),
		MaxBytes:          1024,
		AllowedExtensions: []string{".pdf", ".txt", ".md", ".docx"},
	})
	if err != nil {
		t.Fatalf("uploads.NewStorage: %v", err)
	}

	e := newEcho()
	(&UploadHandler{Uploads: uploadStorage, Pipeline: pipe}).Register(e)
	(&AskHandler{Pipeline: pipe}).Register(e)
	return e
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, w.FormDataContentType()
}

func TestUploadThenAsk(t *testing.T) {
	llm := &stubLLM{response: "Gophers dig tunnels."}
	e := newTestServer(t, llm)

	body, contentType := multipartUpload(t, "animals.txt", []byte("The gopher digs tunnels underground."))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", rec.Code, rec.Body.String())
	}
	var uploadResp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &uploadResp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if uploadResp["file_id"] == "" {
		t.Fatalf("missing file_id: %v", uploadResp)
	}
	if uploadResp["filename"] != "animals.txt" {
		t.Fatalf("filename %q, want the original name", uploadResp["filename"])
	}

	req = httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"what do gophers do?"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ask status %d: %s", rec.Code, rec.Body.String())
	}
	var askResp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &askResp); err != nil {
		t.Fatalf("decode ask response: %v", err)
	}
	if askResp["answer"] != llm.response {
		t.Fatalf("answer %q, want %q", askResp["answer"], llm.response)
	}
	if askResp["session_id"] == "" {
		t.Fatal("expected a session id")
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	e := newTestServer(t, &stubLLM{})

	body, contentType := multipartUpload(t, "slides.pptx", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestUploadRejectsOversize(t *testing.T) {
	e := newTestServer(t, &stubLLM{})

	body, contentType := multipartUpload(t, "big.txt", bytes.Repeat([]byte("a"), 2048))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestUploadRequiresFile(t *testing.T) {
	e := newTestServer(t, &stubLLM{})

	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	e := newTestServer(t, &stubLLM{})

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestAskFallsBackWithNothingIndexed(t *testing.T) {
	e := newTestServer(t, &stubLLM{response: "should not be used"})

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"anything?"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["answer"] != pipeline.FallbackAnswer {
		t.Fatalf("answer %q, want the fallback", resp["answer"])
	}
}

func TestChatHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, COALESCE\(session_id,''\), message, response, created_at FROM chats ORDER BY created_at DESC`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "message", "response", "created_at"}).
			AddRow("2", "", "newest q", "newest a", now).
			AddRow("1", "", "oldest q", "oldest a", now.Add(-time.Hour)))

	e := newEcho()
	(&HistoryHandler{Store: &store.Store{DB: db}}).Register(e)

	req := httptest.NewRequest(http.MethodGet, "/chat-history", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ChatHistory []struct {
			Message  string `json:"message"`
			Response string `json:"response"`
		} `json:"chat_history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.ChatHistory) != 2 || resp.ChatHistory[0].Message != "newest q" {
		t.Fatalf("unexpected history: %+v", resp.ChatHistory)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChatHistoryWithoutPostgres(t *testing.T) {
	e := newEcho()
	(&HistoryHandler{}).Register(e)

	req := httptest.NewRequest(http.MethodGet, "/chat-history", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rec.Code)
	}
}
