package filter

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
	"github.com/logship/logship/pkg/clause"
	"github.com/logship/logship/pkg/event"
	"github.com/logship/logship/pkg/stream"
)

// timestampLayout renders UTC instants with microsecond precision, matching
// the format expected downstream, e.g. 2023-04-01T12:30:45.123456Z.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Now returns the current UTC time in the timestamp format used by
// add_timestamp.
func Now() string {
	return time.Now().UTC().Format(timestampLayout)
}

// Builtins registers the standard filters on the registry.
func Builtins(r *Registry) error {
	inits := map[string]BuildInitFunc{
		"init_txt":  buildInitTxt,
		"init_json": buildInitJSON,
	}
	for name, build := range inits {
		if err := r.RegisterInit(name, build); err != nil {
			return err
		}
	}
	filters := map[string]BuildFunc{
		"add_timestamp":   buildAddTimestamp,
		"add_source_host": buildAddSourceHost,
		"add_fields":      buildAddFields,
		"add_tags":        buildAddTags,
		"parse_lograge":   buildParseLograge,
	}
	for name, build := range filters {
		if err := r.Register(name, build); err != nil {
			return err
		}
	}

	r.Document("init_txt", `init_txt

Takes each raw input line as the event's @message, with the trailing line
terminator stripped. Use as the first filter in a pipeline.`)
	r.Document("init_json", `init_json

Parses each raw input line as a JSON object and takes its members as the
event's fields. Lines that are not valid JSON, or not JSON objects, are
logged and skipped. Use as the first filter in a pipeline.`)
	r.Document("add_timestamp", `add_timestamp[:override=BOOL]

Adds a @timestamp field holding the current UTC time with microsecond
precision. An existing @timestamp is kept unless override=true.`)
	r.Document("add_source_host", `add_source_host[:override=BOOL]

Adds a @source_host field holding this machine's fully-qualified domain
name. An existing @source_host is kept unless override=true.`)
	r.Document("add_fields", `add_fields:KEY=VALUE[:KEY=VALUE...]

Merges the given key=value pairs into the event's @fields map, creating it
if needed. Values for existing keys are replaced.`)
	r.Document("add_tags", `add_tags:TAG[:TAG...]

Appends the given tags to the event's @tags list, creating it if needed.`)
	r.Document("parse_lograge", `parse_lograge

Parses lograge-style key=value tokens out of the event's @message and merges
them into the @fields map. Events without a @message are logged and
dropped.`)
	return nil
}

// mapEach lifts an in-place event mutation into a pipeline stage.
func mapEach(fn func(ev event.Event)) Func {
	return func(src stream.Iterator[event.Event]) stream.Iterator[event.Event] {
		return stream.Func[event.Event](func() (event.Event, error) {
			ev, err := src.Next()
			if err != nil {
				return nil, err
			}
			fn(ev)
			return ev, nil
		})
	}
}

func buildInitTxt(_ hclog.Logger, args clause.Args) (InitFunc, error) {
	if err := args.None(); err != nil {
		return nil, fmt.Errorf("init_txt: %w", err)
	}
	return func(lines stream.Iterator[string]) stream.Iterator[event.Event] {
		return stream.Func[event.Event](func() (event.Event, error) {
			line, err := lines.Next()
			if err != nil {
				return nil, err
			}
			return event.Event{
				event.KeyMessage: strings.TrimRight(line, "\r\n"),
			}, nil
		})
	}, nil
}

func buildInitJSON(log hclog.Logger, args clause.Args) (InitFunc, error) {
	if err := args.None(); err != nil {
		return nil, fmt.Errorf("init_json: %w", err)
	}
	return func(lines stream.Iterator[string]) stream.Iterator[event.Event] {
		return stream.Func[event.Event](func() (event.Event, error) {
			for {
				line, err := lines.Next()
				if err != nil {
					return nil, err
				}
				var parsed any
				if err := json.Unmarshal([]byte(line), &parsed); err != nil {
					log.Warn("init_json: could not parse message as JSON", "message", line, "error", err)
					continue
				}
				obj, ok := parsed.(map[string]any)
				if !ok {
					log.Warn("init_json: skipping message that is not a JSON object", "message", line)
					continue
				}
				return event.Event(obj), nil
			}
		})
	}, nil
}

func overrideArg(name string, args clause.Args) (bool, error) {
	if err := args.NoPositional(); err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	if err := args.Known("override"); err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	override, err := args.Bool("override", false)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return override, nil
}

func buildAddTimestamp(_ hclog.Logger, args clause.Args) (Func, error) {
	override, err := overrideArg("add_timestamp", args)
	if err != nil {
		return nil, err
	}
	return mapEach(func(ev event.Event) {
		if override || !ev.Has(event.KeyTimestamp) {
			ev[event.KeyTimestamp] = Now()
		}
	}), nil
}

func buildAddSourceHost(_ hclog.Logger, args clause.Args) (Func, error) {
	override, err := overrideArg("add_source_host", args)
	if err != nil {
		return nil, err
	}
	host := fqdn()
	return mapEach(func(ev event.Event) {
		if override || !ev.Has(event.KeySourceHost) {
			ev[event.KeySourceHost] = host
		}
	}), nil
}

func buildAddFields(_ hclog.Logger, args clause.Args) (Func, error) {
	if err := args.NoPositional(); err != nil {
		return nil, fmt.Errorf("add_fields: %w", err)
	}
	fields := args.Keywords()
	if len(fields) == 0 {
		return nil, fmt.Errorf("add_fields: %w: at least one key=value pair is required", clause.ErrArgs)
	}
	return mapEach(func(ev event.Event) {
		m := ev.EnsureFields()
		for k, v := range fields {
			m[k] = v
		}
	}), nil
}

func buildAddTags(_ hclog.Logger, args clause.Args) (Func, error) {
	if err := args.Known(); err != nil {
		return nil, fmt.Errorf("add_tags: %w", err)
	}
	tags := args.Positional()
	if len(tags) == 0 {
		return nil, fmt.Errorf("add_tags: %w: at least one tag is required", clause.ErrArgs)
	}
	return mapEach(func(ev event.Event) {
		ev.AppendTags(tags...)
	}), nil
}

func buildParseLograge(log hclog.Logger, args clause.Args) (Func, error) {
	if err := args.None(); err != nil {
		return nil, fmt.Errorf("parse_lograge: %w", err)
	}
	return func(src stream.Iterator[event.Event]) stream.Iterator[event.Event] {
		return stream.Func[event.Event](func() (event.Event, error) {
			for {
				ev, err := src.Next()
				if err != nil {
					return nil, err
				}
				msg, ok := ev.AsString(event.KeyMessage)
				if !ok {
					log.Warn("parse_lograge: skipping event without @message", "event", ev)
					continue
				}
				fields := ev.EnsureFields()
				for _, token := range strings.Fields(msg) {
					if k, v, found := strings.Cut(token, "="); found {
						fields[k] = v
					}
				}
				return ev, nil
			}
		})
	}, nil
}

// fqdn resolves this machine's fully-qualified domain name, falling back to
// the bare hostname when reverse resolution is unavailable.
func fqdn() string {
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	addrs, err := net.LookupIP(host)
	if err != nil {
		return host
	}
	for _, addr := range addrs {
		names, err := net.LookupAddr(addr.String())
		if err != nil || len(names) == 0 {
			continue
		}
		return strings.TrimSuffix(names[0], ".")
	}
	return host
}
