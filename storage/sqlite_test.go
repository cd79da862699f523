package storage

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/richinex/inkwell/llm"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := NewInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestSQLiteStorageSaveAndLoad(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	messages := []llm.ChatMessage{
		{Role: "system", Content: "You are a writer."},
		{Role: "user", Content: "Write a short story"},
		{Role: "assistant", Content: "Once upon a time..."},
	}

	if err := storage.Save(ctx, "test-session", messages); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := storage.Load(ctx, "test-session")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !reflect.DeepEqual(loaded, messages) {
		t.Errorf("loaded history differs:\ngot  %+v\nwant %+v", loaded, messages)
	}
}

func TestSQLiteStorageRoundTripsToolTurns(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	messages := []llm.ChatMessage{
		{Role: "user", Content: "Write chapter one"},
		{
			Role:             "assistant",
			ReasoningContent: "I should start with the opening scene.",
			ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "write_file", Arguments: json.RawMessage(`{"path":"ch1.md","content":"..."}`)},
			},
		},
		llm.ToolResultMessage("call_1", "write_file", "Successfully wrote ch1.md"),
	}

	if err := storage.Save(ctx, "book-session", messages); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := storage.Load(ctx, "book-session")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(loaded))
	}

	assistant := loaded[1]
	if assistant.ReasoningContent != "I should start with the opening scene." {
		t.Errorf("reasoning not preserved: %q", assistant.ReasoningContent)
	}
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(assistant.ToolCalls))
	}
	call := assistant.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "write_file" {
		t.Errorf("tool call identity not preserved: %+v", call)
	}
	if string(call.Arguments) != `{"path":"ch1.md","content":"..."}` {
		t.Errorf("tool call arguments not preserved: %s", call.Arguments)
	}

	toolTurn := loaded[2]
	if toolTurn.Role != "tool" || toolTurn.ToolCallID != "call_1" || toolTurn.Name != "write_file" {
		t.Errorf("tool result linkage not preserved: %+v", toolTurn)
	}
}

func TestSQLiteStorageSaveReplacesHistory(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	first := []llm.ChatMessage{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
	}
	if err := storage.Save(ctx, "session", first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	second := []llm.ChatMessage{
		{Role: "user", Content: "rewritten"},
	}
	if err := storage.Save(ctx, "session", second); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := storage.Load(ctx, "session")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Content != "rewritten" {
		t.Errorf("expected replaced history, got %+v", loaded)
	}
}

func TestSQLiteStorageLoadNonexistentSession(t *testing.T) {
	storage := newTestStorage(t)

	loaded, err := storage.Load(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty slice, got %d messages", len(loaded))
	}
}

func TestSQLiteStorageDeleteSession(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	messages := []llm.ChatMessage{
		{Role: "user", Content: "Test"},
	}

	if err := storage.Save(ctx, "test-session", messages); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	exists, err := storage.Exists(ctx, "test-session")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected session to exist")
	}

	if err := storage.Delete(ctx, "test-session"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	exists, err = storage.Exists(ctx, "test-session")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected session to not exist after deletion")
	}

	loaded, err := storage.Load(ctx, "test-session")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected no messages after deletion, got %d", len(loaded))
	}
}

func TestSQLiteStorageListSessions(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	msg := []llm.ChatMessage{
		{Role: "user", Content: "Test"},
	}

	if err := storage.Save(ctx, "session-1", msg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := storage.Save(ctx, "session-2", msg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sessions, err := storage.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}

	if len(sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(sessions))
	}
	found := map[string]bool{}
	for _, id := range sessions {
		found[id] = true
	}
	if !found["session-1"] || !found["session-2"] {
		t.Errorf("missing sessions in %v", sessions)
	}
}

func TestOpenSQLiteCreatesParentDirectories(t *testing.T) {
	path := t.TempDir() + "/nested/dir/sessions.db"

	storage, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	if err := storage.Save(ctx, "s", []llm.ChatMessage{{Role: "user", Content: "x"}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}
