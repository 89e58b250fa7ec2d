package memory

import (
	"context"
	"sync"
	"testing"

	"fintrack/internal/core"
)

func TestStoreExportUpserts(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.Export(ctx, core.Transaction{ID: 2, Description: "first", Amount: core.Cents(100)})
	if err != nil || ref != "mem:2" {
		t.Fatalf("unexpected export: ref=%q err=%v", ref, err)
	}
	if _, err := s.Export(ctx, core.Transaction{ID: 1, Description: "other"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Export(ctx, core.Transaction{ID: 2, Description: "second"}); err != nil {
		t.Fatal(err)
	}

	rows := s.Rows()
	if len(rows) != 2 || rows[0].ID != 2 || rows[1].ID != 1 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	got, ok := s.Get(2)
	if !ok || got.Description != "second" {
		t.Fatalf("Get(2) = %+v, %v", got, ok)
	}
	if s.Exports() != 3 {
		t.Errorf("Exports() = %d, want 3", s.Exports())
	}
}

func TestStoreRejectsMissingID(t *testing.T) {
	if _, err := New().Export(context.Background(), core.Transaction{}); err == nil {
		t.Fatal("expected error for transaction without ID")
	}
}

func TestStoreConcurrentExport(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Export(context.Background(), core.Transaction{ID: id})
		}(int64(i))
	}
	wg.Wait()
	if len(s.Rows()) != 50 {
		t.Errorf("Rows() = %d, want 50", len(s.Rows()))
	}
}
