package stream

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLines(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected []string
	}{
		"trailing newline": {
			input:    "a\nb\nc\n",
			expected: []string{"a", "b", "c"},
		},
		"no trailing newline": {
			input:    "a\nb",
			expected: []string{"a", "b"},
		},
		"windows line endings": {
			input:    "a\r\nb\r\n",
			expected: []string{"a", "b"},
		},
		"blank lines kept": {
			input:    "a\n\nb\n",
			expected: []string{"a", "", "b"},
		},
		"empty input": {
			input:    "",
			expected: nil,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			got, err := Collect(Lines(strings.NewReader(tc.input)))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestLines_LongLine(t *testing.T) {
	long := strings.Repeat("x", 128*1024)
	got, err := Collect(Lines(strings.NewReader(long + "\n")))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, long, got[0])
}

func TestFollow(t *testing.T) {
	td, err := os.MkdirTemp("", "TestFollow-*")
	require.NoError(t, err)
	defer func() {
		_ = os.RemoveAll(td)
	}()
	path := filepath.Join(td, "test.log")
	require.NoError(t, os.WriteFile(path, []byte("A\nB\nC\n"), 0600))

	it, stop, err := Follow(path)
	require.NoError(t, err)

	var got []string
	for i := 0; i < 3; i++ {
		line, err := it.Next()
		require.NoError(t, err)
		got = append(got, line)
	}
	assert.Equal(t, []string{"A", "B", "C"}, got)
	assert.NoError(t, stop())
}

func TestFollow_MissingFile(t *testing.T) {
	_, _, err := Follow(filepath.Join(t.TempDir(), "nope.log"))
	assert.Error(t, err)
}
