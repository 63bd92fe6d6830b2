// Package sink defines where finished events go. Sinks are built from
// textual descriptions such as "stdout,bulk=true" resolved against a
// Registry, and every sink absorbs its own delivery failures so that one
// broken destination cannot take down the rest of the run.
package sink

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/logship/logship/pkg/clause"
	"github.com/logship/logship/pkg/event"
	"github.com/logship/logship/pkg/stream"
)

var (
	ErrUnknownSink   = errors.New("no such sink")
	ErrDuplicateSink = errors.New("sink already registered")
)

// Sink is one destination for events.
//
// Ship never reports delivery failure to the caller; implementations log the
// failure and drop the event instead. Close releases the sink's transport
// and is called once, after the last Ship.
type Sink interface {
	Ship(ev event.Event)
	Close() error
}

// Builder constructs a sink from its clause arguments. Argument problems are
// reported here, at build time, not during shipping.
type Builder func(log hclog.Logger, args clause.Args) (Sink, error)

// Registry maps sink names to their builders.
type Registry struct {
	log      hclog.Logger
	builders map[string]Builder
	docs     map[string]string
}

func NewRegistry(log hclog.Logger) *Registry {
	return &Registry{
		log:      log.Named("sink"),
		builders: map[string]Builder{},
		docs:     map[string]string{},
	}
}

// Register adds a sink under the given name. Registering a taken name is an
// error.
func (r *Registry) Register(name string, build Builder) error {
	if build == nil {
		panic("sink builder is nil")
	}
	if _, ok := r.builders[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSink, name)
	}
	r.builders[name] = build
	return nil
}

// Document records usage documentation for a registered sink. It's
// recommended to start with a usage line showing the clause form.
func (r *Registry) Document(name, doc string) {
	r.docs[name] = doc
}

// Docs returns the documentation for every registered sink, in alphabetical
// order by name.
func (r *Registry) Docs() string {
	var buf strings.Builder
	buf.WriteString("Sinks:\n")
	if len(r.builders) == 0 {
		buf.WriteString(indentString("None\n"))
		return buf.String()
	}
	var names []string
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	var body strings.Builder
	for _, name := range names {
		doc, ok := r.docs[name]
		if !ok {
			doc = name
		}
		if !strings.HasSuffix(doc, "\n") {
			doc += "\n"
		}
		body.WriteString(doc)
		body.WriteString("\n")
	}
	buf.WriteString(indentString(body.String()))
	return buf.String()
}

// Build parses a comma separated sink description, resolves its first
// segment against the registry, and constructs the sink it names with the
// remaining segments as arguments.
func (r *Registry) Build(desc string) (Sink, error) {
	clauses, err := clause.SplitList(desc)
	if err != nil {
		return nil, fmt.Errorf("parsing sink description: %w", err)
	}
	if len(clauses) == 0 || clauses[0] == "" {
		return nil, fmt.Errorf("%w: empty sink description", clause.ErrArgs)
	}
	name := clauses[0]
	build, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSink, name)
	}
	s, err := build(r.log, clause.Parse(clauses[1:]))
	if err != nil {
		return nil, fmt.Errorf("building sink %q: %w", name, err)
	}
	return s, nil
}

// ShipAll drains the event stream, delivering each event to every sink in
// order before pulling the next. A stream error other than normal end of
// stream is returned.
func ShipAll(events stream.Iterator[event.Event], sinks []Sink) error {
	return stream.Each(events, func(ev event.Event) error {
		for _, s := range sinks {
			s.Ship(ev)
		}
		return nil
	})
}

const indent = "  "

func indentString(s string) string {
	s = strings.TrimSuffix(strings.ReplaceAll(indent+s, "\n", "\n"+indent), indent)
	return strings.ReplaceAll(s, "\n"+indent+"\n", "\n\n")
}
