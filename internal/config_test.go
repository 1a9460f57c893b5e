package internal

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/sensiblebit/sailor"
)

func openTestStore(t *testing.T) *ConfigStore {
	t.Helper()
	store, err := OpenConfigStore("")
	if err != nil {
		t.Fatalf("OpenConfigStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestConfigStore_GetSet(t *testing.T) {
	// WHY: Missing keys must read as "not set" without touching the target,
	// and Set must replace rather than append.
	t.Parallel()
	store := openTestStore(t)

	got := []string{"default"}
	ok, err := store.Get("missing", &got)
	if err != nil {
		t.Fatal(err)
	}
	if ok || !slices.Equal(got, []string{"default"}) {
		t.Errorf("missing key: ok=%v value=%v", ok, got)
	}

	for _, v := range [][]string{{"a"}, {"b", "c"}} {
		if err := store.Set("list", v); err != nil {
			t.Fatal(err)
		}
	}
	ok, err = store.Get("list", &got)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !slices.Equal(got, []string{"b", "c"}) {
		t.Errorf("got ok=%v value=%v, want [b c]", ok, got)
	}

	if err := store.Delete("list"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.Get("list", &got); ok {
		t.Error("key still present after Delete")
	}
}

func TestConfigStore_PersistsAcrossOpens(t *testing.T) {
	// WHY: Trust decisions and saved servers must survive the process; a
	// second open of the same file sees what the first one wrote, whatever
	// characters the path contains.
	t.Parallel()

	tests := []struct {
		name string
		file string
	}{
		{"plain", "config.db"},
		{"query and fragment characters", "conf?ig#1.db"},
		{"percent and space", "my config%20.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if runtime.GOOS == "windows" && strings.ContainsAny(tt.file, "?#") {
				t.Skip("file name not valid on Windows")
			}
			path := filepath.Join(t.TempDir(), "nested", tt.file)

			first, err := OpenConfigStore(path)
			if err != nil {
				t.Fatal(err)
			}
			if err := sailor.NewTrustStore(first).AddFingerprint("ab:cd"); err != nil {
				t.Fatal(err)
			}
			if err := first.Close(); err != nil {
				t.Fatal(err)
			}
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("database not written at %s: %v", path, err)
			}

			second, err := OpenConfigStore(path)
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = second.Close() }()

			if second.Path() != path {
				t.Errorf("Path() = %q, want %q", second.Path(), path)
			}
			fps, err := second.Fingerprints()
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(fps, []string{"AB:CD"}) {
				t.Errorf("got %v, want [AB:CD]", fps)
			}
		})
	}
}

func TestConfigStore_FingerprintsDefaultEmpty(t *testing.T) {
	// WHY: A fresh configuration has no trusted certificates; the trust store
	// must see an empty list, not an error.
	t.Parallel()
	store := openTestStore(t)

	fps, err := store.Fingerprints()
	if err != nil {
		t.Fatal(err)
	}
	if len(fps) != 0 {
		t.Errorf("got %v, want empty", fps)
	}

	trust := sailor.NewTrustStore(store)
	if err := trust.AddFingerprint("01:02"); err != nil {
		t.Fatal(err)
	}
	if err := trust.AddFingerprint("0102"); err != nil {
		t.Fatal(err)
	}
	fps, _ = store.Fingerprints()
	if !slices.Equal(fps, []string{"01:02"}) {
		t.Errorf("got %v, want [01:02]", fps)
	}
}
