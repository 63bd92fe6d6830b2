// Package filter builds lazy event pipelines from textual descriptions such
// as "init_txt,add_timestamp,add_tags:a:b". A pipeline starts with an init
// filter that turns raw lines into events; every later stage maps events to
// events. Nothing is read until the resulting stream is pulled.
package filter

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
	ErrUnknownFilter   = errors.New("no such filter")
	ErrDuplicateFilter = errors.New("filter already registered")
	ErrBadPipeline     = errors.New("invalid filter pipeline")
)

// Func transforms one event stream into another. Implementations pull from
// src on demand and may drop items, but must pass stream errors through
// unchanged.
type Func func(src stream.Iterator[event.Event]) stream.Iterator[event.Event]

// InitFunc begins a pipeline by turning raw input lines into events.
type InitFunc func(lines stream.Iterator[string]) stream.Iterator[event.Event]

// BuildFunc constructs a filter stage from its clause arguments. Argument
// problems are reported here, at build time, not during streaming.
type BuildFunc func(log hclog.Logger, args clause.Args) (Func, error)

// BuildInitFunc constructs an init stage from its clause arguments.
type BuildInitFunc func(log hclog.Logger, args clause.Args) (InitFunc, error)

// Registry maps filter names to their builders.
type Registry struct {
	log     hclog.Logger
	inits   map[string]BuildInitFunc
	filters map[string]BuildFunc
	docs    map[string]string
}

func NewRegistry(log hclog.Logger) *Registry {
	return &Registry{
		log:     log.Named("filter"),
		inits:   map[string]BuildInitFunc{},
		filters: map[string]BuildFunc{},
		docs:    map[string]string{},
	}
}

// RegisterInit adds an init filter under the given name. Names are shared
// with event filters, and registering a taken name is an error.
func (r *Registry) RegisterInit(name string, build BuildInitFunc) error {
	if build == nil {
		panic("filter builder is nil")
	}
	if r.taken(name) {
		return fmt.Errorf("%w: %s", ErrDuplicateFilter, name)
	}
	r.inits[name] = build
	return nil
}

// Register adds an event filter under the given name.
func (r *Registry) Register(name string, build BuildFunc) error {
	if build == nil {
		panic("filter builder is nil")
	}
	if r.taken(name) {
		return fmt.Errorf("%w: %s", ErrDuplicateFilter, name)
	}
	r.filters[name] = build
	return nil
}

func (r *Registry) taken(name string) bool {
	if _, ok := r.inits[name]; ok {
		return true
	}
	_, ok := r.filters[name]
	return ok
}

// Document records usage documentation for a registered filter. It's
// recommended to start with a usage line showing the clause form.
func (r *Registry) Document(name, doc string) {
	r.docs[name] = doc
}

// Docs returns the documentation for every registered filter, in
// alphabetical order by name.
func (r *Registry) Docs() string {
	var names []string
	for name := range r.inits {
		names = append(names, name)
	}
	for name := range r.filters {
		names = append(names, name)
	}
	return listDocs("Filters:", names, r.docs)
}

// Build parses a comma separated pipeline description, resolves each clause
// against the registry, and constructs the stage it names. The first clause
// must name an init filter and the rest must not.
func (r *Registry) Build(desc string) (*Pipeline, error) {
	clauses, err := clause.SplitList(desc)
	if err != nil {
		return nil, fmt.Errorf("parsing filter description: %w", err)
	}
	if len(clauses) == 0 {
		return nil, fmt.Errorf("%w: empty filter description", ErrBadPipeline)
	}
	p := &Pipeline{}
	for i, c := range clauses {
		segments, err := clause.SplitClause(c)
		if err != nil {
			return nil, fmt.Errorf("parsing filter clause %q: %w", c, err)
		}
		if len(segments) == 0 || segments[0] == "" {
			return nil, fmt.Errorf("%w: empty filter clause", ErrBadPipeline)
		}
		name := segments[0]
		args := clause.Parse(segments[1:])
		if i == 0 {
			build, ok := r.inits[name]
			if !ok {
				if _, isFilter := r.filters[name]; isFilter {
					return nil, fmt.Errorf("%w: filter %q consumes events and cannot start a pipeline", ErrBadPipeline, name)
				}
				return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
			}
			init, err := build(r.log, args)
			if err != nil {
				return nil, fmt.Errorf("building filter %q: %w", name, err)
			}
			p.init = init
			continue
		}
		build, ok := r.filters[name]
		if !ok {
			if _, isInit := r.inits[name]; isInit {
				return nil, fmt.Errorf("%w: filter %q reads raw lines and must come first", ErrBadPipeline, name)
			}
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
		}
		fn, err := build(r.log, args)
		if err != nil {
			return nil, fmt.Errorf("building filter %q: %w", name, err)
		}
		p.stages = append(p.stages, fn)
	}
	return p, nil
}

// Pipeline is an ordered filter chain with its arguments already bound.
// A pipeline holds no per-run state and may be run any number of times.
type Pipeline struct {
	init   InitFunc
	stages []Func
}

// Run attaches the pipeline to an input line stream and returns the lazy
// event stream coming out the end.
func (p *Pipeline) Run(lines stream.Iterator[string]) stream.Iterator[event.Event] {
	return Compose(p.stages...)(p.init(lines))
}

// Compose chains event filters left to right: each event produced by the
// first stage feeds the second, and so on.
func Compose(stages ...Func) Func {
	return func(src stream.Iterator[event.Event]) stream.Iterator[event.Event] {
		for _, stage := range stages {
			src = stage(src)
		}
		return src
	}
}

const indent = "  "

func indentString(s string) string {
	s = strings.TrimSuffix(strings.ReplaceAll(indent+s, "\n", "\n"+indent), indent)
	return strings.ReplaceAll(s, "\n"+indent+"\n", "\n\n")
}

func listDocs(heading string, names []string, docs map[string]string) string {
	var buf strings.Builder
	buf.WriteString(heading + "\n")
	if len(names) == 0 {
		buf.WriteString(indentString("None\n"))
		return buf.String()
	}
	sort.Strings(names)
	var body strings.Builder
	for _, name := range names {
		doc, ok := docs[name]
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
