package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// HashReader streams r through SHA-256 and returns the hex digest plus
// the number of bytes consumed. Used for the whole-file hash pass; the
// file is never held in memory.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("failed to hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// verifyingWriter forwards writes to w while hashing them, so a restore
// can verify the whole file without a second read pass.
type verifyingWriter struct {
	w io.Writer
	h hash.Hash
	n int64
}

func newVerifyingWriter(w io.Writer) *verifyingWriter {
	return &verifyingWriter{w: w, h: sha256.New()}
}

func (v *verifyingWriter) Write(p []byte) (int, error) {
	n, err := v.w.Write(p)
	if n > 0 {
		v.h.Write(p[:n])
		v.n += int64(n)
	}
	return n, err
}

func (v *verifyingWriter) Sum() string {
	return hex.EncodeToString(v.h.Sum(nil))
}

func (v *verifyingWriter) Written() int64 {
	return v.n
}
