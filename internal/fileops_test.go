package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteAll(t *testing.T) {
	var buf bytes.Buffer
	data := bytes.Repeat([]byte("x"), 10000)
	n, err := WriteAll(&buf, data)
	assert.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf.Bytes())
}

func TestExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	assert.False(t, Exists(path))
	assert.NoError(t, os.WriteFile(path, []byte("1"), 0644))
	assert.True(t, Exists(path))
}
