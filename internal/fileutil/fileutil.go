// Package fileutil copies artifacts into place without exposing partial files.
package fileutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Digest describes a copied file.
type Digest struct {
	Size   int64
	SHA256 string
}

// AtomicCopy streams src into a temp file beside dst, checks that the byte
// count matches the source and renames it over dst. dst is left untouched
// when any step fails.
func AtomicCopy(ctx context.Context, src, dst string, mode os.FileMode) (Digest, error) {
	if err := ctx.Err(); err != nil {
		return Digest{}, err
	}
	in, err := os.Open(src)
	if err != nil {
		return Digest{}, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return Digest{}, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return Digest{}, fmt.Errorf("source %s is a directory", src)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return Digest{}, fmt.Errorf("temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (Digest, error) {
		tmp.Close()
		os.Remove(tmpName)
		return Digest{}, err
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), &ctxReader{ctx: ctx, r: in})
	if err != nil {
		return fail(fmt.Errorf("copy: %w", err))
	}
	if written != info.Size() {
		return fail(fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written))
	}
	if err := tmp.Chmod(mode); err != nil {
		return fail(fmt.Errorf("chmod: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Digest{}, fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return Digest{}, fmt.Errorf("rename: %w", err)
	}
	return Digest{Size: written, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
