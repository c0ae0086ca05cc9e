package fastcdc

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFastCDCChunker_Validation tests the validation logic of NewChunker.
func TestFastCDCChunker_Validation(t *testing.T) {
	testCases := []struct {
		name        string
		opts        Options
		expectError bool
	}{
		{
			name:        "Valid Options",
			opts:        Options{AverageSize: 4096, MinSize: 1024, MaxSize: 8192},
			expectError: false,
		},
		{
			name:        "Missing AverageSize",
			opts:        Options{MinSize: 1024, MaxSize: 8192},
			expectError: true,
		},
		{
			name:        "MinSize too small",
			opts:        Options{AverageSize: 4096, MinSize: 10, MaxSize: 8192},
			expectError: true,
		},
		{
			name:        "MaxSize too large",
			opts:        Options{AverageSize: 4096, MinSize: 1024, MaxSize: 1 << 31},
			expectError: true,
		},
		{
			name:        "MinSize >= MaxSize",
			opts:        Options{AverageSize: 4096, MinSize: 8192, MaxSize: 4096},
			expectError: true,
		},
		{
			name:        "AverageSize not between Min and Max",
			opts:        Options{AverageSize: 10000, MinSize: 1024, MaxSize: 8192},
			expectError: true,
		},
		{
			name:        "AverageSize not a power of two",
			opts:        Options{AverageSize: 5000, MinSize: 1024, MaxSize: 8192},
			expectError: true,
		},
		{
			name:        "BufSize < MaxSize",
			opts:        Options{AverageSize: 4096, MinSize: 1024, MaxSize: 8192, BufSize: 4096},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewChunker(bytes.NewReader([]byte{}), tc.opts)
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func chunkAll(t *testing.T, data []byte, opts Options) []Chunk {
	chunker, err := NewChunker(bytes.NewReader(data), opts)
	assert.NoError(t, err)

	var chunks []Chunk
	for {
		chunk, err := chunker.Next()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		// Data is only valid until the next call
		copied := chunk
		copied.Data = append([]byte(nil), chunk.Data...)
		chunks = append(chunks, copied)
	}
	return chunks
}

// TestFastCDCChunker_ChunkingLogic tests the core chunking logic.
func TestFastCDCChunker_ChunkingLogic(t *testing.T) {
	// A mix of repeating and somewhat random data
	data := func() []byte {
		d := make([]byte, 0, 20000)
		d = append(d, bytes.Repeat([]byte{0x01}, 5000)...)
		d = append(d, bytes.Repeat([]byte{0xFF}, 5000)...)
		for i := 0; i < 10000; i++ {
			d = append(d, byte(i))
		}
		return d
	}()

	opts := Options{AverageSize: 4096, MinSize: 1024, MaxSize: 8192}

	chunks := chunkAll(t, data, opts)
	assert.Greater(t, len(chunks), 1, "Should produce multiple chunks for this test case")

	var totalSize, lastOffset int
	for _, chunk := range chunks {
		if chunk.Length < len(data) { // If not the only chunk
			assert.GreaterOrEqual(t, chunk.Length, opts.MinSize, "Chunk length should be >= MinSize")
		}
		assert.LessOrEqual(t, chunk.Length, opts.MaxSize, "Chunk length should be <= MaxSize")

		// Assert data integrity
		assert.Equal(t, data[chunk.Offset:chunk.Offset+chunk.Length], chunk.Data)

		// Assert offset is correct
		assert.Equal(t, lastOffset, chunk.Offset)
		lastOffset += chunk.Length
		totalSize += chunk.Length
	}
	assert.Equal(t, len(data), totalSize, "Total size of chunks should equal input size")
}

// Chunk boundaries must be a pure function of content.
func TestFastCDCChunker_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	data := make([]byte, 1<<20)
	rng.Read(data)

	opts := Options{AverageSize: 8192, MinSize: 2048, MaxSize: 32768}
	first := chunkAll(t, data, opts)
	second := chunkAll(t, data, opts)
	assert.Equal(t, first, second)
}

// Editing a few bytes in the middle must only disturb nearby chunks:
// boundaries after the edit realign because they depend on local content.
func TestFastCDCChunker_Locality(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := make([]byte, 1<<20)
	rng.Read(data)

	edited := append([]byte(nil), data...)
	copy(edited[512*1024:], []byte("mutation"))

	opts := Options{AverageSize: 8192, MinSize: 2048, MaxSize: 32768}
	orig := chunkAll(t, data, opts)
	mod := chunkAll(t, edited, opts)

	origFPs := make(map[uint64]bool, len(orig))
	for _, c := range orig {
		origFPs[c.Fingerprint] = true
	}
	shared := 0
	for _, c := range mod {
		if origFPs[c.Fingerprint] {
			shared++
		}
	}
	assert.Greater(t, shared, len(mod)/2, "most chunks should survive a local edit")
}

func TestFastCDCChunker_SmallInputs(t *testing.T) {
	opts := Options{AverageSize: 4096, MinSize: 1024, MaxSize: 8192}

	t.Run("empty", func(t *testing.T) {
		chunker, err := NewChunker(bytes.NewReader(nil), opts)
		assert.NoError(t, err)
		_, err = chunker.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("one byte", func(t *testing.T) {
		chunks := chunkAll(t, []byte{0x42}, opts)
		assert.Len(t, chunks, 1)
		assert.Equal(t, 1, chunks[0].Length)
	})

	t.Run("below min size", func(t *testing.T) {
		chunks := chunkAll(t, bytes.Repeat([]byte{0x2a}, 100), opts)
		assert.Len(t, chunks, 1)
		assert.Equal(t, 100, chunks[0].Length)
	})
}

func TestFastCDCChunker_Reset(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	data := make([]byte, 256*1024)
	rng.Read(data)

	opts := Options{AverageSize: 8192, MinSize: 2048, MaxSize: 32768}
	chunker, err := NewChunker(bytes.NewReader(data), opts)
	assert.NoError(t, err)

	var first []int
	for {
		chunk, err := chunker.Next()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		first = append(first, chunk.Length)
	}

	chunker.Reset(bytes.NewReader(data))
	var second []int
	for {
		chunk, err := chunker.Next()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		second = append(second, chunk.Length)
	}
	assert.Equal(t, first, second)
}

// A 10MB file with megabyte-scale bounds lands between 2 and 10 chunks.
func TestFastCDCChunker_LargeBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	data := make([]byte, 10<<20)
	rng.Read(data)

	opts := Options{MinSize: 1 << 20, AverageSize: 4 << 20, MaxSize: 8 << 20}
	chunks := chunkAll(t, data, opts)

	assert.GreaterOrEqual(t, len(chunks), 2)
	assert.LessOrEqual(t, len(chunks), 10)
	total := 0
	for _, chunk := range chunks {
		total += chunk.Length
	}
	assert.Equal(t, len(data), total)
}

// Forced cuts kick in on data with no natural boundaries.
func TestFastCDCChunker_MaxSizeForcedCut(t *testing.T) {
	data := bytes.Repeat([]byte{0x00}, 100*1024)
	opts := Options{AverageSize: 4096, MinSize: 1024, MaxSize: 8192}

	chunks := chunkAll(t, data, opts)
	total := 0
	for i, chunk := range chunks {
		if i < len(chunks)-1 {
			assert.Equal(t, opts.MaxSize, chunk.Length)
		}
		total += chunk.Length
	}
	assert.Equal(t, len(data), total)
}
