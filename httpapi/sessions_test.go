package httpapi

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSessionStoreCreateGetDelete(t *testing.T) {
	store := newSessionStore(time.Hour, "")
	token, sess := store.create("alice")
	if token == "" {
		t.Fatalf("expected token")
	}
	if sess.userID != "alice" {
		t.Fatalf("unexpected user id: %q", sess.userID)
	}
	if sess.id == "" {
		t.Fatalf("expected session id")
	}
	if _, ok := store.get(token); !ok {
		t.Fatalf("expected session to be found")
	}
	store.delete(token)
	if _, ok := store.get(token); ok {
		t.Fatalf("expected session to be deleted")
	}
}

func TestSessionStoreExpiration(t *testing.T) {
	store := newSessionStore(5*time.Millisecond, "")
	token, _ := store.create("alice")
	time.Sleep(10 * time.Millisecond)
	if _, ok := store.get(token); ok {
		t.Fatalf("expected expired session")
	}
}

func TestSessionStorePersistsSessions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	store := newSessionStore(time.Hour, path)
	token, _ := store.create("alice")

	loaded := newSessionStore(time.Hour, path)
	if _, ok := loaded.get(token); !ok {
		t.Fatalf("expected session to be loaded")
	}
}

func TestSessionStorePersistsExpiration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	store := newSessionStore(5*time.Millisecond, path)
	token, _ := store.create("alice")
	time.Sleep(10 * time.Millisecond)
	if _, ok := store.get(token); ok {
		t.Fatalf("expected session to expire")
	}
	loaded := newSessionStore(time.Hour, path)
	if _, ok := loaded.get(token); ok {
		t.Fatalf("expected expired session to be removed from persistence")
	}
}
