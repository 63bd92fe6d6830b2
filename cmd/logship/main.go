package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
	"github.com/logship/logship/pkg/event"
	"github.com/logship/logship/pkg/filter"
	"github.com/logship/logship/pkg/sink"
	"github.com/logship/logship/pkg/sink/redisq"
	"github.com/logship/logship/pkg/sink/statsd"
	"github.com/logship/logship/pkg/sink/store"
	"github.com/logship/logship/pkg/stream"
)

const (
	defaultFilters = "init_txt,add_timestamp,add_source_host"
	defaultSink    = "redis,redis://localhost:6379"
)

func main() {
	log := newLogger()
	if len(os.Args) <= 1 {
		usage()
		return
	}
	args := os.Args[1:]
	switch args[0] {
	case "ship":
		if err := doShip(log, args[1:]...); err != nil {
			exitError("Failed to ship logs: %v", err)
		}
	case "tag":
		if err := doTag(log, args[1:]...); err != nil {
			exitError("Failed to tag logs: %v", err)
		}
	case "text":
		if err := doText(log); err != nil {
			exitError("Failed to print events: %v", err)
		}
	case "stamp":
		if err := doStamp(); err != nil {
			exitError("Failed to stamp lines: %v", err)
		}
	case "filters":
		if err := doPrintFilters(log); err != nil {
			exitError("Failed to list filters: %v", err)
		}
	case "sinks":
		if err := doPrintSinks(log); err != nil {
			exitError("Failed to list sinks: %v", err)
		}
	case "help":
		usage()
	default:
		exitError("Unrecognized command: '%s'", args[0])
	}
}

func newLogger() hclog.Logger {
	level := hclog.Info
	if env := os.Getenv("LOGSHIP_LOG_LEVEL"); env != "" {
		if parsed := hclog.LevelFromString(env); parsed != hclog.NoLevel {
			level = parsed
		}
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:  "logship",
		Level: level,
	})
}

func exitError(format string, args ...any) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	fmt.Printf("Error: "+format, args...)
	usage()
	os.Exit(-1)
}

func usage() {
	text := `
logship reads log lines, turns them into structured events, and ships them to one or more sinks.

  logship help
  logship filters
  logship sinks
  logship ship [-f FILTERS] [-a CLAUSE]... [-s SINK]... [-t FILE]...
  logship tag [-f FILTERS] [-a CLAUSE]... [-t FILE]...
  logship text
  logship stamp

The 'help' subcommand will print this usage information.
The 'filters' subcommand will print the documentation for all registered filters.
The 'sinks' subcommand will print the documentation for all registered sinks.
The 'ship' subcommand will read log lines from standard input (or follow files given with -t/--tail), run them through the filter pipeline, and ship each event to every sink given with -s/--sink. Without -s, events are shipped to '` + defaultSink + `'.
The 'tag' subcommand will run the same filter pipeline and print each event to standard output as JSON instead of shipping it.
The 'text' subcommand will read JSON events from standard input and print their '@timestamp' and '@message' fields as plain text.
The 'stamp' subcommand will prefix each line from standard input with the current timestamp.

The filter pipeline is given with -f/--filters and defaults to '` + defaultFilters + `'. Clauses given with -a/--filters-append are appended to it.
`
	fmt.Print(text)
}

// stringList collects the values of a repeatable flag.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

// pipelineOpts are the flags shared by the subcommands that run a filter
// pipeline over an input stream.
type pipelineOpts struct {
	filters string
	appends stringList
	tails   stringList
}

func addPipelineFlags(fs *flag.FlagSet, opts *pipelineOpts) {
	fs.StringVar(&opts.filters, "f", defaultFilters, "filter pipeline description")
	fs.StringVar(&opts.filters, "filters", defaultFilters, "filter pipeline description")
	fs.Var(&opts.appends, "a", "filter clause appended to the pipeline")
	fs.Var(&opts.appends, "filters-append", "filter clause appended to the pipeline")
	fs.Var(&opts.tails, "t", "follow FILE instead of reading standard input")
	fs.Var(&opts.tails, "tail", "follow FILE instead of reading standard input")
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(io.Discard)
	err := fs.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		usage()
		os.Exit(0)
	}
	if err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

func doShip(log hclog.Logger, args ...string) error {
	fs := flag.NewFlagSet("ship", flag.ContinueOnError)
	var opts pipelineOpts
	addPipelineFlags(fs, &opts)
	var sinkDescs stringList
	fs.Var(&sinkDescs, "s", "sink description")
	fs.Var(&sinkDescs, "sink", "sink description")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if len(sinkDescs) == 0 {
		sinkDescs = stringList{defaultSink}
	}
	pipe, err := newPipeline(log, &opts)
	if err != nil {
		return err
	}
	sinks, err := buildSinks(log, sinkDescs)
	if err != nil {
		return err
	}
	defer closeSinks(log, sinks)
	lines, stop, err := inputLines(&opts)
	if err != nil {
		return err
	}
	defer stop()
	return sink.ShipAll(pipe.Run(lines), sinks)
}

func doTag(log hclog.Logger, args ...string) error {
	fs := flag.NewFlagSet("tag", flag.ContinueOnError)
	var opts pipelineOpts
	addPipelineFlags(fs, &opts)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	pipe, err := newPipeline(log, &opts)
	if err != nil {
		return err
	}
	lines, stop, err := inputLines(&opts)
	if err != nil {
		return err
	}
	defer stop()
	sinks := []sink.Sink{sink.NewConsole(log, os.Stdout, sink.Encoder{})}
	defer closeSinks(log, sinks)
	return sink.ShipAll(pipe.Run(lines), sinks)
}

func doText(log hclog.Logger) error {
	return stream.Each(stream.Lines(os.Stdin), func(line string) error {
		var ev event.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil || ev == nil {
			log.Warn("Skipping line that is not a JSON object", "line", line)
			return nil
		}
		msg, ok := ev.AsString(event.KeyMessage)
		if !ok {
			log.Warn("Skipping event without a message field")
			return nil
		}
		if ts, ok := ev.AsString(event.KeyTimestamp); ok {
			fmt.Println(ts, msg)
			return nil
		}
		fmt.Println(msg)
		return nil
	})
}

func doStamp() error {
	return stream.Each(stream.Lines(os.Stdin), func(line string) error {
		fmt.Println(filter.Now(), line)
		return nil
	})
}

func doPrintFilters(log hclog.Logger) error {
	reg, err := newFilterRegistry(log)
	if err != nil {
		return err
	}
	fmt.Println("Filters build the pipeline that turns raw log lines into structured events. The first filter of a pipeline must be an init filter.")
	fmt.Println()
	fmt.Print(reg.Docs())
	return nil
}

func doPrintSinks(log hclog.Logger) error {
	reg, err := newSinkRegistry(log)
	if err != nil {
		return err
	}
	fmt.Println("Sinks are the destinations events are shipped to. Every sink given to 'ship' receives every event.")
	fmt.Println()
	fmt.Print(reg.Docs())
	return nil
}

func newFilterRegistry(log hclog.Logger) (*filter.Registry, error) {
	reg := filter.NewRegistry(log)
	if err := filter.Builtins(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func newSinkRegistry(log hclog.Logger) (*sink.Registry, error) {
	reg := sink.NewRegistry(log)
	for _, register := range []func(*sink.Registry) error{
		sink.Builtins,
		redisq.Register,
		statsd.Register,
		store.Register,
	} {
		if err := register(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func newPipeline(log hclog.Logger, opts *pipelineOpts) (*filter.Pipeline, error) {
	reg, err := newFilterRegistry(log)
	if err != nil {
		return nil, err
	}
	desc := opts.filters
	if len(opts.appends) > 0 {
		desc += "," + strings.Join(opts.appends, ",")
	}
	return reg.Build(desc)
}

func buildSinks(log hclog.Logger, descs []string) ([]sink.Sink, error) {
	var sinks []sink.Sink
	reg, err := newSinkRegistry(log)
	if err != nil {
		return nil, err
	}
	for _, desc := range descs {
		s, err := reg.Build(desc)
		if err != nil {
			closeSinks(log, sinks)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func closeSinks(log hclog.Logger, sinks []sink.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Error("Error closing sink", "error", err)
		}
	}
}

// inputLines returns the stream the pipeline reads from: standard input, or
// the merged output of every followed file. The stop function releases any
// file watchers.
func inputLines(opts *pipelineOpts) (stream.Iterator[string], func(), error) {
	if len(opts.tails) == 0 {
		return stream.Lines(os.Stdin), func() {}, nil
	}
	var (
		its   []stream.Iterator[string]
		stops []func() error
	)
	stopAll := func() {
		for _, stop := range stops {
			_ = stop()
		}
	}
	for _, path := range opts.tails {
		it, stop, err := stream.Follow(path)
		if err != nil {
			stopAll()
			return nil, nil, err
		}
		its = append(its, it)
		stops = append(stops, stop)
	}
	return stream.Merge(its...), stopAll, nil
}
