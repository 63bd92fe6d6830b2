package sink

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/logship/logship/pkg/clause"
	"github.com/logship/logship/pkg/event"
	"github.com/logship/logship/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(hclog.NewNullLogger())
	require.NoError(t, Builtins(r))
	return r
}

// recorder keeps every shipped event for later inspection.
type recorder struct {
	shipped []event.Event
	closed  bool
}

func (r *recorder) Ship(ev event.Event) {
	r.shipped = append(r.shipped, ev)
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, errors.New("transport down")
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := testRegistry(t)
	err := r.Register("stdout", buildNull)
	assert.ErrorIs(t, err, ErrDuplicateSink)
}

func TestRegistry_Build_Errors(t *testing.T) {
	tests := map[string]struct {
		desc     string
		expected error
		contains string
	}{
		"unknown sink": {
			desc:     "does_not_exist",
			expected: ErrUnknownSink,
			contains: "does_not_exist",
		},
		"empty description": {
			desc:     "",
			expected: clause.ErrArgs,
		},
		"unexpected keyword": {
			desc:     "stdout,what=ever",
			expected: clause.ErrArgs,
			contains: "what",
		},
		"unexpected positional": {
			desc:     "stdout,positional",
			expected: clause.ErrArgs,
		},
		"bad bulk flag": {
			desc:     "stdout,bulk=banana",
			expected: clause.ErrArgs,
		},
		"null takes no arguments": {
			desc:     "null,key=value",
			expected: clause.ErrArgs,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			_, err := testRegistry(t).Build(tc.desc)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.expected)
			if tc.contains != "" {
				assert.Contains(t, err.Error(), tc.contains)
			}
		})
	}
}

func TestRegistry_BuildConsole(t *testing.T) {
	s, err := testRegistry(t).Build("stdout,bulk=true,bulk_index=idx")
	require.NoError(t, err)
	console, ok := s.(*Console)
	require.True(t, ok)
	assert.Equal(t, Encoder{Bulk: true, BulkIndex: "idx", BulkType: "message"}, console.enc)
	assert.NoError(t, s.Close())
}

func TestConsole_Ship(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		var buf bytes.Buffer
		c := NewConsole(hclog.NewNullLogger(), &buf, Encoder{})
		c.Ship(event.Event{"@message": "one"})
		c.Ship(event.Event{"@message": "two"})
		lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
		assert.Equal(t, []string{`{"@message":"one"}`, `{"@message":"two"}`}, lines)
	})
	t.Run("bulk", func(t *testing.T) {
		var buf bytes.Buffer
		c := NewConsole(hclog.NewNullLogger(), &buf, Encoder{Bulk: true, BulkIndex: "logs", BulkType: "message"})
		c.Ship(event.Event{"@message": "one"})
		lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], `"_index":"logs"`)
		assert.Contains(t, lines[1], `"@message":"one"`)
	})
	t.Run("write failure is absorbed", func(t *testing.T) {
		c := NewConsole(hclog.NewNullLogger(), failWriter{}, Encoder{})
		assert.NotPanics(t, func() {
			c.Ship(event.Event{"@message": "lost"})
		})
	})
}

func TestShipAll(t *testing.T) {
	first := &recorder{}
	second := &recorder{}
	events := []event.Event{
		{"@message": "one"},
		{"@message": "two"},
	}
	err := ShipAll(stream.FromSlice(events), []Sink{first, second})
	require.NoError(t, err)
	assert.Equal(t, events, first.shipped)
	assert.Equal(t, events, second.shipped)
}

func TestShipAll_ContinuesPastFailingSink(t *testing.T) {
	broken := NewConsole(hclog.NewNullLogger(), failWriter{}, Encoder{})
	rec := &recorder{}
	events := []event.Event{
		{"@message": "one"},
		{"@message": "two"},
	}
	err := ShipAll(stream.FromSlice(events), []Sink{broken, rec})
	require.NoError(t, err)
	assert.Equal(t, events, rec.shipped, "Later sinks should still receive every event")
}

func TestShipAll_PropagatesStreamError(t *testing.T) {
	boom := errors.New("stream broke")
	bad := stream.Func[event.Event](func() (event.Event, error) {
		return nil, boom
	})
	err := ShipAll(bad, []Sink{&recorder{}})
	assert.ErrorIs(t, err, boom)
}

func TestNull(t *testing.T) {
	s, err := testRegistry(t).Build("null")
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		s.Ship(event.Event{"@message": "gone"})
	})
	assert.NoError(t, s.Close())
}

func TestRegistry_Docs(t *testing.T) {
	docs := testRegistry(t).Docs()
	assert.Contains(t, docs, "Sinks:")
	assert.Contains(t, docs, "stdout")
	assert.Contains(t, docs, "null")
}
