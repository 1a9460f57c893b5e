package internal

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ArchiveLimits bounds what is packed into a build context.
type ArchiveLimits struct {
	// MaxDecompressionRatio is the maximum allowed ratio of uncompressed to
	// compressed size for a single ZIP entry. A ratio of 100 means a 1KB
	// compressed entry may decompress to at most 100KB.
	MaxDecompressionRatio int64

	// MaxTotalSize is the maximum total bytes packed into one context.
	MaxTotalSize int64

	// MaxEntryCount is the maximum number of files in one context.
	MaxEntryCount int

	// MaxEntrySize is the maximum size of a single file.
	MaxEntrySize int64
}

// DefaultArchiveLimits returns the limits used by sailor build.
func DefaultArchiveLimits() ArchiveLimits {
	return ArchiveLimits{
		MaxDecompressionRatio: 100,
		MaxTotalSize:          4 << 30, // 4 GB
		MaxEntryCount:         100_000,
		MaxEntrySize:          2 << 30, // 2 GB
	}
}

// ErrArchiveLimit is returned when a build context exceeds its limits.
var ErrArchiveLimit = errors.New("build context exceeds limits")

// archiveExtensions maps file extensions to archive format identifiers.
// The ".tar.gz" compound extension is handled separately in ArchiveFormat.
var archiveExtensions = map[string]string{
	".zip": "zip",
	".tar": "tar",
	".tgz": "tar.gz",
}

// ArchiveFormat returns the archive format for the given path based on its
// extension, or "" if the path is not a recognized archive. Handles compound
// extensions like ".tar.gz" before checking single extensions.
func ArchiveFormat(path string) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".tar.gz") {
		return "tar.gz"
	}
	ext := strings.ToLower(filepath.Ext(path))
	return archiveExtensions[ext]
}

// IsArchive reports whether the given path has a recognized archive extension.
func IsArchive(path string) bool {
	return ArchiveFormat(path) != ""
}

// skippableDirs are version control directories never sent to the daemon.
var skippableDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
}

// IsSkippableDir reports whether a directory is left out of build contexts.
func IsSkippableDir(name string) bool {
	return skippableDirs[name]
}

// OpenBuildContext returns a tar stream the Docker build endpoint accepts for
// the given path. Tar and gzipped tar files are passed through unchanged; a
// directory or ZIP file is repacked as tar while it is read. Errors found
// while repacking surface from Read.
func OpenBuildContext(contextPath string, limits ArchiveLimits) (io.ReadCloser, error) {
	info, err := os.Stat(contextPath)
	if err != nil {
		return nil, fmt.Errorf("opening build context: %w", err)
	}
	if info.IsDir() {
		return packTar(func(tw *tar.Writer) error { return packDirectory(tw, contextPath, limits) }), nil
	}

	switch format := ArchiveFormat(contextPath); format {
	case "tar", "tar.gz":
		f, err := os.Open(contextPath)
		if err != nil {
			return nil, fmt.Errorf("opening build context: %w", err)
		}
		return f, nil
	case "zip":
		zr, err := zip.OpenReader(contextPath)
		if err != nil {
			return nil, fmt.Errorf("opening ZIP archive %s: %w", contextPath, err)
		}
		return packTar(func(tw *tar.Writer) error {
			defer func() { _ = zr.Close() }()
			return packZip(tw, contextPath, &zr.Reader, limits)
		}), nil
	default:
		return nil, fmt.Errorf("unsupported build context %s: expected a directory, .tar, .tar.gz, .tgz, or .zip", contextPath)
	}
}

// packTar runs fill on a goroutine writing into a pipe. Closing the returned
// reader stops fill at its next write.
func packTar(fill func(*tar.Writer) error) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		tw := tar.NewWriter(pw)
		err := fill(tw)
		if err == nil {
			err = tw.Close()
		}
		_ = pw.CloseWithError(err)
	}()
	return pr
}

// budget tracks the entry count and byte totals of one context.
type budget struct {
	limits  ArchiveLimits
	entries int
	total   int64
}

func (b *budget) take(name string, size int64) error {
	if b.entries >= b.limits.MaxEntryCount {
		return fmt.Errorf("%w: more than %d files", ErrArchiveLimit, b.limits.MaxEntryCount)
	}
	if size > b.limits.MaxEntrySize {
		return fmt.Errorf("%w: %s is larger than %d bytes", ErrArchiveLimit, name, b.limits.MaxEntrySize)
	}
	if b.total+size > b.limits.MaxTotalSize {
		return fmt.Errorf("%w: more than %d bytes in total", ErrArchiveLimit, b.limits.MaxTotalSize)
	}
	b.entries++
	b.total += size
	return nil
}

func packDirectory(tw *tar.Writer, root string, limits ArchiveLimits) error {
	b := &budget{limits: limits}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if d.IsDir() && IsSkippableDir(d.Name()) {
			slog.Debug("skipping directory in build context", "path", p)
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		} else if !info.Mode().IsRegular() && !info.IsDir() {
			slog.Debug("skipping special file in build context", "path", p)
			return nil
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("building tar header for %s: %w", p, err)
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}
		header.Uname, header.Gname = "", ""

		if header.Typeflag == tar.TypeReg {
			if err := b.take(header.Name, header.Size); err != nil {
				return err
			}
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if header.Typeflag != tar.TypeReg {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if _, err := io.Copy(tw, io.LimitReader(f, header.Size)); err != nil {
			return fmt.Errorf("adding %s: %w", p, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Debug("packed build context", "dir", root, "files", b.entries, "bytes", b.total)
	return nil
}

func packZip(tw *tar.Writer, archivePath string, zr *zip.Reader, limits ArchiveLimits) error {
	b := &budget{limits: limits}
	for _, f := range zr.File {
		name := path.Clean(strings.TrimPrefix(f.Name, "/"))
		if name == "." || strings.HasPrefix(name, "../") || name == ".." {
			slog.Warn("skipping ZIP entry outside the context root", "archive", archivePath, "entry", f.Name)
			continue
		}

		if f.FileInfo().IsDir() {
			if err := tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir,
				Name:     name + "/",
				Mode:     0o755,
				ModTime:  f.Modified,
			}); err != nil {
				return err
			}
			continue
		}

		// Check decompression ratio using ZIP header sizes
		if f.CompressedSize64 > 0 {
			ratio := int64(f.UncompressedSize64) / int64(f.CompressedSize64)
			if ratio > limits.MaxDecompressionRatio {
				return fmt.Errorf("%w: ZIP entry %s decompression ratio %d exceeds %d",
					ErrArchiveLimit, f.Name, ratio, limits.MaxDecompressionRatio)
			}
		}
		size := int64(f.UncompressedSize64)
		if err := b.take(name, size); err != nil {
			return err
		}

		mode := int64(f.Mode().Perm())
		if mode == 0 {
			mode = 0o644
		}
		if err := tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Size:     size,
			Mode:     mode,
			ModTime:  f.Modified,
		}); err != nil {
			return err
		}
		if err := copyZipEntry(tw, f, size); err != nil {
			return err
		}
	}
	slog.Debug("repacked ZIP build context", "archive", archivePath, "files", b.entries, "bytes", b.total)
	return nil
}

// copyZipEntry copies exactly size bytes of f, failing when the entry holds
// more or less than its header claims.
func copyZipEntry(w io.Writer, f *zip.File, size int64) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening ZIP entry %s: %w", f.Name, err)
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			slog.Warn("closing ZIP entry", "entry", f.Name, "error", closeErr)
		}
	}()

	// LimitReader to size+1 so an entry longer than its header is detected.
	n, err := io.Copy(w, io.LimitReader(rc, safeLimitSize(size)))
	if err != nil {
		return fmt.Errorf("reading ZIP entry %s: %w", f.Name, err)
	}
	if n != size {
		return fmt.Errorf("ZIP entry %s does not match its declared size of %d bytes", f.Name, size)
	}
	return nil
}

// safeLimitSize returns maxSize+1 for overflow detection in io.LimitReader,
// clamped to math.MaxInt64 to prevent int64 wraparound.
func safeLimitSize(maxSize int64) int64 {
	if maxSize == math.MaxInt64 {
		return math.MaxInt64
	}
	return maxSize + 1
}
