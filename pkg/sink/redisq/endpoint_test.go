package redisq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := map[string]struct {
		raw      string
		expected Endpoint
		wantErr  bool
	}{
		"full form": {
			raw:      "redis://queue.example:6380/3",
			expected: Endpoint{Host: "queue.example", Port: 6380, DB: 3},
		},
		"all defaults": {
			raw:      "redis://",
			expected: Endpoint{Host: "localhost", Port: 6379, DB: 0},
		},
		"host only": {
			raw:      "redis://queue.example",
			expected: Endpoint{Host: "queue.example", Port: 6379, DB: 0},
		},
		"port only": {
			raw:      "redis://:6380",
			expected: Endpoint{Host: "localhost", Port: 6380, DB: 0},
		},
		"db only": {
			raw:      "redis:///2",
			expected: Endpoint{Host: "localhost", Port: 6379, DB: 2},
		},
		"non-numeric db": {
			raw:     "redis://localhost/primary",
			wantErr: true,
		},
		"missing slashes": {
			raw:     "redis:6379",
			wantErr: true,
		},
		"bad port": {
			raw:     "redis://localhost:not-a-port",
			wantErr: true,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			got, err := ParseEndpoint(tc.raw)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrBadEndpoint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestEndpoint_Addr(t *testing.T) {
	ep := Endpoint{Host: "queue.example", Port: 6380, DB: 3}
	assert.Equal(t, "queue.example:6380", ep.Addr())
	assert.Equal(t, "redis://queue.example:6380/3", ep.String())
}

func TestParseEndpoints(t *testing.T) {
	endpoints, err := ParseEndpoints([]string{"redis://a", "redis://b:6380"})
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{
		{Host: "a", Port: 6379},
		{Host: "b", Port: 6380},
	}, endpoints)

	_, err = ParseEndpoints([]string{"redis://a", "redis://b/x"})
	assert.ErrorIs(t, err, ErrBadEndpoint)
}
