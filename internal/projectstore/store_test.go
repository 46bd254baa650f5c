package projectstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"pkt.systems/codepad/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreCreateAndRead(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "alice", "demo", schema.NewBufferSnapshot("<p>hi</p>", "p{}", "1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	read, err := store.Read(ctx, "alice", created.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if read.Name != "demo" || read.HTML != "<p>hi</p>" || read.CSS != "p{}" || read.JS != "1" {
		t.Fatalf("unexpected project %+v", read)
	}
	if read.OwnerID != "alice" {
		t.Fatalf("unexpected owner %q", read.OwnerID)
	}
}

func TestStoreReadUnknownAndForbidden(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Read(ctx, "alice", 42); !errors.Is(err, schema.ErrProjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	created, err := store.Create(ctx, "alice", "demo", schema.NewBufferSnapshot("", "", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Read(ctx, "bob", created.ID); !errors.Is(err, schema.ErrProjectForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestStoreUpdatePartialFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "alice", "demo", schema.NewBufferSnapshot("<p>old</p>", "old{}", "old"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	html := "<p>new</p>"
	updated, err := store.Update(ctx, "alice", created.ID, schema.ProjectUpdate{HTML: &html})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.HTML != "<p>new</p>" {
		t.Fatalf("html not updated: %q", updated.HTML)
	}
	if updated.CSS != "old{}" || updated.JS != "old" || updated.Name != "demo" {
		t.Fatalf("nil fields must stay untouched: %+v", updated)
	}

	read, err := store.Read(ctx, "alice", created.ID)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if read.HTML != "<p>new</p>" || read.CSS != "old{}" {
		t.Fatalf("update not persisted: %+v", read)
	}
}

func TestStoreUpdateErrors(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	html := "x"
	if _, err := store.Update(ctx, "alice", 42, schema.ProjectUpdate{HTML: &html}); !errors.Is(err, schema.ErrProjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	created, err := store.Create(ctx, "alice", "demo", schema.NewBufferSnapshot("", "", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Update(ctx, "bob", created.ID, schema.ProjectUpdate{HTML: &html}); !errors.Is(err, schema.ErrProjectForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "alice", "demo", schema.NewBufferSnapshot("", "", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Delete(ctx, "bob", created.ID); !errors.Is(err, schema.ErrProjectForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := store.Delete(ctx, "alice", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "alice", created.ID); !errors.Is(err, schema.ErrProjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreListNewestFirstPerUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "alice", "first", schema.NewBufferSnapshot("", "", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Ensure distinct updated_at millis.
	time.Sleep(5 * time.Millisecond)
	second, err := store.Create(ctx, "alice", "second", schema.NewBufferSnapshot("", "", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, "bob", "other", schema.NewBufferSnapshot("", "", "")); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := store.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("unexpected order: %+v", list)
	}

	// Updating the older project moves it to the front.
	time.Sleep(5 * time.Millisecond)
	html := "<p>touched</p>"
	if _, err := store.Update(ctx, "alice", first.ID, schema.ProjectUpdate{HTML: &html}); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, err = store.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list[0].ID != first.ID {
		t.Fatalf("expected updated project first, got %+v", list)
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	created, err := store.Create(ctx, "alice", "demo", schema.NewBufferSnapshot("<p>persist</p>", "", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()
	read, err := reopened.Read(ctx, "alice", created.ID)
	if err != nil {
		t.Fatalf("read after reopen: %v", err)
	}
	if read.HTML != "<p>persist</p>" {
		t.Fatalf("unexpected html %q", read.HTML)
	}
}
