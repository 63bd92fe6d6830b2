package statsd

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/logship/logship/pkg/event"
	"github.com/logship/logship/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// agent is a UDP listener standing in for a statsd daemon.
type agent struct {
	pc net.PacketConn
}

func newAgent(t *testing.T) *agent {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pc.Close()
	})
	return &agent{pc: pc}
}

func (a *agent) port() int {
	return a.pc.LocalAddr().(*net.UDPAddr).Port
}

func (a *agent) read(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 1024)
	require.NoError(t, a.pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := a.pc.ReadFrom(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func (a *agent) expectSilence(t *testing.T) {
	t.Helper()
	buf := make([]byte, 1024)
	require.NoError(t, a.pc.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := a.pc.ReadFrom(buf)
	assert.Error(t, err, "No datagram should have been sent")
}

func TestCounter(t *testing.T) {
	a := newAgent(t)
	s, err := NewCounter(hclog.NewNullLogger(), "responses.%{@fields.status}", "127.0.0.1", a.port())
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	s.Ship(event.Event{
		event.KeyFields: map[string]any{"status": "200"},
	})
	assert.Equal(t, "responses.200:1|c", a.read(t))

	// Numeric field values interpolate the same way.
	s.Ship(event.Event{
		event.KeyFields: map[string]any{"status": float64(404)},
	})
	assert.Equal(t, "responses.404:1|c", a.read(t))
}

func TestCounter_PlainName(t *testing.T) {
	a := newAgent(t)
	s, err := NewCounter(hclog.NewNullLogger(), "events.shipped", "127.0.0.1", a.port())
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	s.Ship(event.Event{event.KeyMessage: "x"})
	assert.Equal(t, "events.shipped:1|c", a.read(t))
}

func TestCounter_MissingFieldDropsEvent(t *testing.T) {
	a := newAgent(t)
	s, err := NewCounter(hclog.NewNullLogger(), "responses.%{@fields.status}", "127.0.0.1", a.port())
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	s.Ship(event.Event{event.KeyMessage: "no fields here"})
	a.expectSilence(t)
}

func TestCounter_LiteralKeyWins(t *testing.T) {
	a := newAgent(t)
	s, err := NewCounter(hclog.NewNullLogger(), "hits.%{a.b}", "127.0.0.1", a.port())
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	s.Ship(event.Event{
		"a.b": "literal",
		"a":   map[string]any{"b": "nested"},
	})
	assert.Equal(t, "hits.literal:1|c", a.read(t))
}

func TestTimer(t *testing.T) {
	a := newAgent(t)
	s, err := NewTimer(hclog.NewNullLogger(), "request.time", "@fields.time", "127.0.0.1", a.port())
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	// String values, as produced by parse_lograge, are coerced.
	s.Ship(event.Event{
		event.KeyFields: map[string]any{"time": "0.05"},
	})
	assert.Equal(t, "request.time:0.050000|ms", a.read(t))

	s.Ship(event.Event{
		event.KeyFields: map[string]any{"time": float64(12.5)},
	})
	assert.Equal(t, "request.time:12.500000|ms", a.read(t))
}

func TestTimer_MissingFieldDropsEvent(t *testing.T) {
	a := newAgent(t)
	s, err := NewTimer(hclog.NewNullLogger(), "request.time", "@fields.time", "127.0.0.1", a.port())
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	s.Ship(event.Event{event.KeyMessage: "no timing"})
	a.expectSilence(t)

	s.Ship(event.Event{
		event.KeyFields: map[string]any{"time": "not a number"},
	})
	a.expectSilence(t)
}

func TestRegister_Build(t *testing.T) {
	a := newAgent(t)
	reg := sink.NewRegistry(hclog.NewNullLogger())
	require.NoError(t, Register(reg))

	t.Run("counter", func(t *testing.T) {
		s, err := reg.Build("statsd,metric=hits,host=127.0.0.1,port=" + strconv.Itoa(a.port()))
		require.NoError(t, err)
		defer func() {
			_ = s.Close()
		}()
		s.Ship(event.Event{})
		assert.Equal(t, "hits:1|c", a.read(t))
	})
	t.Run("counter alias", func(t *testing.T) {
		s, err := reg.Build("statsd_counter,metric=hits,host=127.0.0.1,port=" + strconv.Itoa(a.port()))
		require.NoError(t, err)
		assert.NoError(t, s.Close())
	})
	t.Run("timer", func(t *testing.T) {
		s, err := reg.Build("statsd_timer,metric=t,timed_field=@fields.ms,host=127.0.0.1,port=" + strconv.Itoa(a.port()))
		require.NoError(t, err)
		defer func() {
			_ = s.Close()
		}()
		s.Ship(event.Event{event.KeyFields: map[string]any{"ms": float64(3)}})
		assert.Equal(t, "t:3.000000|ms", a.read(t))
	})
}

func TestBuild_Errors(t *testing.T) {
	reg := sink.NewRegistry(hclog.NewNullLogger())
	require.NoError(t, Register(reg))

	tests := map[string]string{
		"counter missing metric":    "statsd",
		"timer missing timed_field": "statsd_timer,metric=t",
		"unexpected positional":     "statsd,metric=t,oops",
		"unknown keyword":           "statsd,metric=t,nope=1",
		"bad port":                  "statsd,metric=t,port=nope",
		"counter rejects timed":     "statsd,metric=t,timed_field=x",
	}

	for name, desc := range tests {
		desc := desc
		t.Run(name, func(t *testing.T) {
			_, err := reg.Build(desc)
			assert.Error(t, err)
		})
	}
}
