package internal

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestArchiveFormat(t *testing.T) {
	// WHY: Build contexts are chosen by extension, case-insensitively, and
	// IsArchive must agree with ArchiveFormat.
	t.Parallel()

	tests := []struct {
		name      string
		path      string
		want      string
		isArchive bool
	}{
		{"zip", "context.zip", "zip", true},
		{"tar", "context.tar", "tar", true},
		{"tgz", "context.tgz", "tar.gz", true},
		{"tar.gz", "context.tar.gz", "tar.gz", true},
		{"uppercase TAR.GZ", "CONTEXT.TAR.GZ", "tar.gz", true},
		{"dockerfile", "Dockerfile", "", false},
		{"nested path zip", "/builds/app/context.zip", "zip", true},
		{"tar.gz.bak", "context.tar.gz.bak", "", false},
		{"trailing dot", "context.tar.", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ArchiveFormat(tt.path); got != tt.want {
				t.Errorf("ArchiveFormat(%q) = %q, want %q", tt.path, got, tt.want)
			}
			if got := IsArchive(tt.path); got != tt.isArchive {
				t.Errorf("IsArchive(%q) = %v, want %v", tt.path, got, tt.isArchive)
			}
		})
	}
}

// readTar returns the entry names and regular file contents of a tar stream.
func readTar(t *testing.T, r io.Reader) ([]string, map[string]string) {
	t.Helper()
	var names []string
	files := map[string]string{}
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return names, files
		}
		if err != nil {
			t.Fatalf("reading tar: %v", err)
		}
		names = append(names, header.Name)
		if header.Typeflag == tar.TypeReg {
			data, err := io.ReadAll(tr)
			if err != nil {
				t.Fatal(err)
			}
			files[header.Name] = string(data)
		}
	}
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestOpenBuildContext_Directory(t *testing.T) {
	// WHY: A directory context is packed with paths relative to its root and
	// without version control metadata.
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"Dockerfile": "FROM alpine\nCOPY src /src\n",
		"src/app.sh": "echo hi\n",
		".git/HEAD":  "ref: refs/heads/main\n",
	})

	rc, err := OpenBuildContext(dir, DefaultArchiveLimits())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rc.Close() }()

	names, files := readTar(t, rc)
	if want := []string{"Dockerfile", "src/", "src/app.sh"}; !slices.Equal(names, want) {
		t.Errorf("entries = %v, want %v", names, want)
	}
	if files["src/app.sh"] != "echo hi\n" {
		t.Errorf("src/app.sh = %q", files["src/app.sh"])
	}
}

func TestOpenBuildContext_Zip(t *testing.T) {
	// WHY: Docker cannot read ZIP contexts, so they are repacked as tar with
	// the same entries and contents.
	t.Parallel()
	p := filepath.Join(t.TempDir(), "context.zip")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create("app/"); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{"Dockerfile": "FROM scratch\n", "app/main.txt": "payload"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	rc, err := OpenBuildContext(p, DefaultArchiveLimits())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rc.Close() }()

	names, files := readTar(t, rc)
	if !slices.Contains(names, "app/") || files["Dockerfile"] != "FROM scratch\n" || files["app/main.txt"] != "payload" {
		t.Errorf("entries = %v, files = %v", names, files)
	}
}

func TestOpenBuildContext_Limits(t *testing.T) {
	// WHY: A context over its limits must fail the build instead of being
	// sent with files silently missing.
	t.Parallel()

	t.Run("entry count", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{"a": "1", "b": "2", "c": "3"})
		limits := DefaultArchiveLimits()
		limits.MaxEntryCount = 2

		rc, err := OpenBuildContext(dir, limits)
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = rc.Close() }()
		if _, err := io.ReadAll(rc); !errors.Is(err, ErrArchiveLimit) {
			t.Errorf("err = %v, want ErrArchiveLimit", err)
		}
	})

	t.Run("decompression ratio", func(t *testing.T) {
		t.Parallel()
		p := filepath.Join(t.TempDir(), "bomb.zip")
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, err := zw.Create("zeros")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(make([]byte, 1<<20)); err != nil {
			t.Fatal(err)
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, buf.Bytes(), 0o600); err != nil {
			t.Fatal(err)
		}

		rc, err := OpenBuildContext(p, DefaultArchiveLimits())
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = rc.Close() }()
		if _, err := io.ReadAll(rc); !errors.Is(err, ErrArchiveLimit) {
			t.Errorf("err = %v, want ErrArchiveLimit", err)
		}
	})
}

func TestOpenBuildContext_PassThrough(t *testing.T) {
	// WHY: Tar contexts are already in the daemon's format and must be sent
	// byte for byte; anything unrecognized is refused up front.
	t.Parallel()
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "context.tar")
	original := []byte("not really a tar, but passed through unchanged")
	if err := os.WriteFile(tarPath, original, 0o600); err != nil {
		t.Fatal(err)
	}

	rc, err := OpenBuildContext(tarPath, DefaultArchiveLimits())
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || !bytes.Equal(got, original) {
		t.Errorf("got %q, err %v", got, err)
	}

	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenBuildContext(txt, DefaultArchiveLimits()); err == nil {
		t.Error("expected an error for an unsupported context file")
	}
	if _, err := OpenBuildContext(filepath.Join(dir, "missing"), DefaultArchiveLimits()); err == nil {
		t.Error("expected an error for a missing context")
	}
}
