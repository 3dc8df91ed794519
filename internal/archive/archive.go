// Package archive verifies backup artifacts before a restore touches live
// account data, and detects the compression sub-format of database dumps.
package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"hostbackup/internal/engine"
)

// Format identifies an artifact's compression/container sub-format.
type Format string

const (
	FormatGzip    Format = "gzip"
	FormatZstd    Format = "zstd"
	FormatLZ4     Format = "lz4"
	FormatTar     Format = "tar"
	FormatSQL     Format = "sql"
	FormatUnknown Format = "unknown"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// DetectFormat sniffs an artifact's format from its leading bytes, falling
// back to a tar header probe and a plain-SQL text heuristic.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, engine.NewVerificationError("failed to open artifact", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return FormatUnknown, engine.NewVerificationError("failed to read artifact header", err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return FormatGzip, nil
	case bytes.HasPrefix(head, zstdMagic):
		return FormatZstd, nil
	case bytes.HasPrefix(head, lz4Magic):
		return FormatLZ4, nil
	}

	// ustar magic sits at offset 257 of the first tar header block.
	if len(head) >= 263 && bytes.Equal(head[257:262], []byte("ustar")) {
		return FormatTar, nil
	}

	if looksLikeSQL(head) {
		return FormatSQL, nil
	}

	return FormatUnknown, nil
}

// OpenReader opens an artifact with decompression matching its detected
// format. Plain tar and SQL artifacts are returned as-is.
func OpenReader(path string) (io.ReadCloser, Format, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, FormatUnknown, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, format, engine.NewVerificationError("failed to open artifact", err)
	}

	switch format {
	case FormatGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, format, engine.NewCorruptionError("artifact has a corrupt gzip stream", err)
		}
		return &wrappedReader{Reader: zr, closers: []io.Closer{zr, f}}, format, nil
	case FormatZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, format, engine.NewCorruptionError("artifact has a corrupt zstd stream", err)
		}
		rc := zr.IOReadCloser()
		return &wrappedReader{Reader: rc, closers: []io.Closer{rc, f}}, format, nil
	case FormatLZ4:
		return &wrappedReader{Reader: lz4.NewReader(f), closers: []io.Closer{f}}, format, nil
	default:
		return f, format, nil
	}
}

// VerifyAccountArchive checks that an artifact is a well-formed (optionally
// gzip-compressed) tar archive whose entries live under a single top-level
// directory with no absolute or parent-escaping paths. This is the fail-fast
// gate before any destructive restore step.
func VerifyAccountArchive(archivePath string) error {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return err
	}
	if format != FormatTar && format != FormatGzip && format != FormatZstd {
		return engine.NewVerificationError("artifact is not a recognized account archive", nil)
	}

	r, _, err := OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	tr := tar.NewReader(r)
	topLevel := ""
	entries := 0

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return engine.NewCorruptionError("artifact has a corrupt tar stream", err)
		}

		name := path.Clean(hdr.Name)
		if path.IsAbs(hdr.Name) || name == ".." || strings.HasPrefix(name, "../") {
			return engine.NewVerificationError("archive contains an unsafe path: "+hdr.Name, nil)
		}

		root := name
		if idx := strings.Index(name, "/"); idx > 0 {
			root = name[:idx]
		}
		if topLevel == "" {
			topLevel = root
		} else if root != topLevel {
			return engine.NewVerificationError("archive does not have a single top-level directory", nil)
		}
		entries++
	}

	if entries == 0 {
		return engine.NewVerificationError("archive is empty", nil)
	}
	return nil
}

// ArchiveRoot returns the single top-level directory name of a verified
// account archive, which by convention is the account name.
func ArchiveRoot(archivePath string) (string, error) {
	r, _, err := OpenReader(archivePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	tr := tar.NewReader(r)
	hdr, err := tr.Next()
	if err != nil {
		return "", engine.NewCorruptionError("artifact has a corrupt tar stream", err)
	}

	name := path.Clean(hdr.Name)
	if idx := strings.Index(name, "/"); idx > 0 {
		return name[:idx], nil
	}
	return name, nil
}

func looksLikeSQL(head []byte) bool {
	text := strings.TrimSpace(string(bytes.ToUpper(head)))
	for _, prefix := range []string{"--", "/*", "CREATE ", "INSERT ", "DROP ", "USE ", "SET "} {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

// wrappedReader closes a stack of readers in order.
type wrappedReader struct {
	io.Reader
	closers []io.Closer
}

func (w *wrappedReader) Close() error {
	var first error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
