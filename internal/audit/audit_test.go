package audit

import (
	"context"
	"errors"
	"testing"

	"trainflow/internal/logger"
	"trainflow/internal/model"
	"trainflow/internal/store"
)

type failingStore struct{ calls int }

func (f *failingStore) CreateAuditLog(context.Context, *model.AuditLog) error {
	f.calls++
	return errors.New("db down")
}

func (f *failingStore) ListAuditLogs(context.Context, model.AuditFilter) ([]model.AuditLog, int, error) {
	return nil, 0, nil
}

func TestRecordSwallowsStoreErrors(t *testing.T) {
	fs := &failingStore{}
	r := NewRecorder(fs, logger.NewNop())
	r.Record(context.Background(), Entry{Action: ActionCreate, EntityType: "Training", EntityID: "t1"})
	if fs.calls != 1 {
		t.Fatalf("want=1 got=%d", fs.calls)
	}
}

func TestRecordPicksUpRequestMeta(t *testing.T) {
	mem := store.NewMemory()
	r := NewRecorder(mem, logger.NewNop())
	ctx := WithRequestMeta(context.Background(), "10.0.0.1", "curl/8")

	r.Record(ctx, Entry{UserID: "u1", Action: ActionDelete, EntityType: "Training", EntityID: "t1", Details: map[string]any{"name": "Go"}})

	page, err := NewQuery(mem).List(context.Background(), model.AuditFilter{EntityType: "Training"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Data) != 1 {
		t.Fatalf("want=1 got=%d", len(page.Data))
	}
	got := page.Data[0]
	if got.IPAddress != "10.0.0.1" || got.UserAgent != "curl/8" || got.Action != ActionDelete {
		t.Fatalf("unexpected record: %+v", got)
	}
	if page.Pagination.Total != 1 || page.Pagination.TotalPages != 1 {
		t.Fatalf("unexpected pagination: %+v", page.Pagination)
	}
}

func TestForEntityFiltersByID(t *testing.T) {
	mem := store.NewMemory()
	r := NewRecorder(mem, logger.NewNop())
	ctx := context.Background()
	r.Record(ctx, Entry{Action: ActionCreate, EntityType: "Training", EntityID: "a"})
	r.Record(ctx, Entry{Action: ActionUpdate, EntityType: "Training", EntityID: "a"})
	r.Record(ctx, Entry{Action: ActionCreate, EntityType: "Training", EntityID: "b"})

	logs, err := NewQuery(mem).ForEntity(ctx, "Training", "a")
	if err != nil {
		t.Fatalf("for entity: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("want=2 got=%d", len(logs))
	}
}
