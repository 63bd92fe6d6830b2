// Package statsd emits one metric datagram per shipped event, incrementing
// a counter or recording a timing. Metric names may interpolate event fields
// with %{path} placeholders, e.g. "responses.%{@fields.status}".
package statsd

import (
	"fmt"
	"net"
	"regexp"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/logship/logship/pkg/clause"
	"github.com/logship/logship/pkg/event"
	"github.com/logship/logship/pkg/sink"
)

var metricPattern = regexp.MustCompile(`%\{([^}]*)\}`)

// Sink sends statsd datagrams over a connected UDP socket. With a timed
// field configured it records timings, otherwise it counts.
type Sink struct {
	log        hclog.Logger
	conn       net.Conn
	metric     string
	timedField string
}

// NewCounter builds a sink that increments metric once per event.
func NewCounter(log hclog.Logger, metric, host string, port int) (*Sink, error) {
	return newSink(log, metric, "", host, port)
}

// NewTimer builds a sink that records the event's timedField value, in
// milliseconds, against metric.
func NewTimer(log hclog.Logger, metric, timedField, host string, port int) (*Sink, error) {
	return newSink(log, metric, timedField, host, port)
}

func newSink(log hclog.Logger, metric, timedField, host string, port int) (*Sink, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("statsd: %w", err)
	}
	return &Sink{
		log:        log.Named("statsd"),
		conn:       conn,
		metric:     metric,
		timedField: timedField,
	}, nil
}

func (s *Sink) Ship(ev event.Event) {
	name, err := s.expand(ev)
	if err != nil {
		s.log.Warn("Could not ship event", "metric", s.metric, "error", err)
		return
	}
	datum := name + ":1|c"
	if s.timedField != "" {
		v, ok := ev.LookupFloat(s.timedField)
		if !ok {
			s.log.Warn("Could not ship event", "metric", s.metric, "field", s.timedField,
				"error", "timed field missing or not numeric")
			return
		}
		datum = name + ":" + strconv.FormatFloat(v, 'f', 6, 64) + "|ms"
	}
	if _, err := s.conn.Write([]byte(datum)); err != nil {
		s.log.Warn("Could not send metric", "metric", name, "error", err)
	}
}

func (s *Sink) Close() error {
	return s.conn.Close()
}

// expand resolves every %{path} placeholder in the metric template against
// the event.
func (s *Sink) expand(ev event.Event) (string, error) {
	var (
		missing string
		miss    bool
	)
	name := metricPattern.ReplaceAllStringFunc(s.metric, func(m string) string {
		path := m[2 : len(m)-1]
		v, ok := ev.LookupString(path)
		if !ok {
			if !miss {
				miss = true
				missing = path
			}
			return ""
		}
		return v
	})
	if miss {
		return "", fmt.Errorf("field %q not found in event", missing)
	}
	return name, nil
}

// Register adds the metric sinks to the registry: "statsd" and its alias
// "statsd_counter" count events, "statsd_timer" records timings.
func Register(r *sink.Registry) error {
	for _, name := range []string{"statsd", "statsd_counter"} {
		if err := r.Register(name, buildCounter); err != nil {
			return err
		}
	}
	if err := r.Register("statsd_timer", buildTimer); err != nil {
		return err
	}
	counterDoc := `statsd,metric=NAME[,host=HOST][,port=PORT]

Increments the named statsd counter once per event. The metric name may
interpolate event fields with %{path} placeholders; events missing a
referenced field are dropped. The agent defaults to 127.0.0.1:8125.`
	r.Document("statsd", counterDoc)
	r.Document("statsd_counter", counterDoc)
	r.Document("statsd_timer", `statsd_timer,metric=NAME,timed_field=PATH[,host=HOST][,port=PORT]

Records the value under the event's timed field, in milliseconds, against
the named statsd timer. The metric name may interpolate event fields with
%{path} placeholders. Events missing a referenced or timed field are
dropped. The agent defaults to 127.0.0.1:8125.`)
	return nil
}

func buildCounter(log hclog.Logger, args clause.Args) (sink.Sink, error) {
	metric, host, port, err := commonArgs(args)
	if err != nil {
		return nil, err
	}
	return NewCounter(log, metric, host, port)
}

func buildTimer(log hclog.Logger, args clause.Args) (sink.Sink, error) {
	if err := args.NoPositional(); err != nil {
		return nil, fmt.Errorf("statsd: %w", err)
	}
	if err := args.Known("metric", "timed_field", "host", "port"); err != nil {
		return nil, fmt.Errorf("statsd: %w", err)
	}
	metric, err := args.Require("metric")
	if err != nil {
		return nil, fmt.Errorf("statsd: %w", err)
	}
	timedField, err := args.Require("timed_field")
	if err != nil {
		return nil, fmt.Errorf("statsd: %w", err)
	}
	port, err := args.Int("port", 8125)
	if err != nil {
		return nil, fmt.Errorf("statsd: %w", err)
	}
	return NewTimer(log, metric, timedField, args.String("host", "127.0.0.1"), port)
}

func commonArgs(args clause.Args) (metric, host string, port int, err error) {
	if err := args.NoPositional(); err != nil {
		return "", "", 0, fmt.Errorf("statsd: %w", err)
	}
	if err := args.Known("metric", "host", "port"); err != nil {
		return "", "", 0, fmt.Errorf("statsd: %w", err)
	}
	metric, err = args.Require("metric")
	if err != nil {
		return "", "", 0, fmt.Errorf("statsd: %w", err)
	}
	port, err = args.Int("port", 8125)
	if err != nil {
		return "", "", 0, fmt.Errorf("statsd: %w", err)
	}
	return metric, args.String("host", "127.0.0.1"), port, nil
}
