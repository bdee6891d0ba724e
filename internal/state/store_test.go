// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package state

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/wneessen/homewatch/internal/logger"
	"github.com/wneessen/homewatch/internal/presence"
)

func testStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := New(path, logger.NewLogger(slog.LevelDebug, io.Discard))
	if err != nil {
		t.Fatalf("failed to create store: %s", err)
	}
	return store
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test file: %s", err)
	}
}

func TestNew(t *testing.T) {
	t.Run("empty path fails", func(t *testing.T) {
		if _, err := New("", logger.New(slog.LevelInfo)); err == nil {
			t.Error("expected store creation to fail")
		}
	})
	t.Run("nil logger fails", func(t *testing.T) {
		if _, err := New("state.json", nil); err == nil {
			t.Error("expected store creation to fail")
		}
	})
}

func TestStore_Load(t *testing.T) {
	t.Run("missing file yields default state", func(t *testing.T) {
		store := testStore(t, filepath.Join(t.TempDir(), "state.json"))
		if st := store.Load(); st != presence.DefaultState() {
			t.Errorf("expected default state, got %+v", st)
		}
	})
	t.Run("valid files are decoded", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
			want    presence.State
		}{
			{"unknown", `{"in_home": null, "last_ts": 0}`, presence.State{Presence: presence.Unknown}},
			{"home", `{"in_home": true, "last_ts": 1712345678901}`, presence.State{Presence: presence.Home, LastTimestamp: 1712345678901}},
			{"away", `{"in_home": false, "last_ts": 17}`, presence.State{Presence: presence.Away, LastTimestamp: 17}},
			{"missing timestamp", `{"in_home": false}`, presence.State{Presence: presence.Away}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "state.json")
				writeFile(t, path, tc.content)
				if st := testStore(t, path).Load(); st != tc.want {
					t.Errorf("expected %+v, got %+v", tc.want, st)
				}
			})
		}
	})
	t.Run("corrupt files yield default state", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
		}{
			{"empty", ""},
			{"truncated", `{"in_home": tr`},
			{"wrong presence type", `{"in_home": "yes", "last_ts": 1}`},
			{"wrong timestamp type", `{"in_home": true, "last_ts": "1"}`},
			{"negative timestamp", `{"in_home": true, "last_ts": -5}`},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "state.json")
				writeFile(t, path, tc.content)
				if st := testStore(t, path).Load(); st != presence.DefaultState() {
					t.Errorf("expected default state, got %+v", st)
				}
			})
		}
	})
}

func TestStore_Save(t *testing.T) {
	t.Run("saved state is loaded back", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
		store := testStore(t, path)
		want := presence.State{Presence: presence.Home, LastTimestamp: 1712345678901}
		if err := store.Save(want); err != nil {
			t.Fatalf("failed to save state: %s", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read state file: %s", err)
		}
		if string(data) != `{"in_home":true,"last_ts":1712345678901}` {
			t.Errorf("unexpected state file content: %s", data)
		}
		if got := store.Load(); got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})
	t.Run("load then save round trips the content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		writeFile(t, path, `{"in_home":false,"last_ts":99}`)
		store := testStore(t, path)
		first := store.Load()
		if err := store.Save(first); err != nil {
			t.Fatalf("failed to save state: %s", err)
		}
		if second := store.Load(); second != first {
			t.Errorf("expected %+v after round trip, got %+v", first, second)
		}
	})
	t.Run("no temporary files are left behind", func(t *testing.T) {
		dir := t.TempDir()
		store := testStore(t, filepath.Join(dir, "state.json"))
		for i := int64(1); i <= 3; i++ {
			if err := store.Save(presence.State{Presence: presence.Away, LastTimestamp: i}); err != nil {
				t.Fatalf("failed to save state: %s", err)
			}
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("failed to read directory: %s", err)
		}
		if len(entries) != 1 || entries[0].Name() != "state.json" {
			t.Errorf("expected only the state file, got %v", entries)
		}
	})
	t.Run("saving into an unwritable location fails", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		writeFile(t, blocker, "not a directory")
		store := testStore(t, filepath.Join(blocker, "state.json"))
		if err := store.Save(presence.DefaultState()); err == nil {
			t.Error("expected save to fail")
		}
	})
}
