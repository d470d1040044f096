package pgvector

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/docqa/internal/index"
)

func TestUpsertRegistersDimensionsOnFirstInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewStorage(db, "documents")

	mock.ExpectExec(`INSERT INTO index_collections`).
		WithArgs("documents", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT dimensions FROM index_collections`).
		WithArgs("documents").
		WillReturnRows(sqlmock.NewRows([]string{"dimensions"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO index_entries`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Upsert(context.Background(), "chunk-1", []float32{1, 2, 3}, "text", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if s.Dimensions() != 3 {
		t.Fatalf("expected dimensions 3, got %d", s.Dimensions())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewStorage(db, "documents")

	mock.ExpectQuery(`SELECT dimensions FROM index_collections`).
		WithArgs("documents").
		WillReturnRows(sqlmock.NewRows([]string{"dimensions"}).AddRow(1536))
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	err = s.Upsert(context.Background(), "chunk-1", []float32{1, 2}, "text", nil)
	if !errors.Is(err, index.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchMapsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewStorage(db, "documents")

	mock.ExpectQuery(`SELECT id, chunk_text, 1 - \(embedding <=>`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "chunk_text", "score"}).
			AddRow("c2", "second chunk", 1.0).
			AddRow("c1", "first chunk", 0.42))

	results, err := s.Search(context.Background(), []float32{0, 1}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "c2" || results[0].Score != 1.0 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Text != "first chunk" {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewStorage(db, "documents")

	mock.ExpectQuery(`SELECT id, chunk_text`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "chunk_text", "score"}))

	results, err := s.Search(context.Background(), []float32{1}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestLoadMissingCollection(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewStorage(db, "documents")

	mock.ExpectQuery(`SELECT dimensions FROM index_collections`).
		WithArgs("documents").
		WillReturnRows(sqlmock.NewRows([]string{"dimensions"}))

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load of unregistered collection should not fail: %v", err)
	}
	if s.Dimensions() != 0 {
		t.Fatalf("expected 0 dimensions, got %d", s.Dimensions())
	}
}
