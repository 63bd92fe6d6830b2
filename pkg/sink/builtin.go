package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/logship/logship/pkg/clause"
	"github.com/logship/logship/pkg/event"
)

// Builtins registers the sinks with no external transport: stdout and null.
func Builtins(r *Registry) error {
	if err := r.Register("stdout", buildConsole); err != nil {
		return err
	}
	if err := r.Register("null", buildNull); err != nil {
		return err
	}
	r.Document("stdout", `stdout[,bulk=BOOL][,bulk_index=NAME][,bulk_type=NAME]

Writes each event to standard output as a newline-terminated JSON document.
With bulk=true events are wrapped in the two-line bulk-index envelope;
bulk_index and bulk_type name the target index and document type.`)
	r.Document("null", `null

Discards every event. Useful for timing a pipeline without shipping.`)
	return nil
}

// Console writes each event to a stream, one JSON payload per event.
type Console struct {
	log hclog.Logger
	w   io.Writer
	enc Encoder
}

func NewConsole(log hclog.Logger, w io.Writer, enc Encoder) *Console {
	return &Console{
		log: log.Named("stdout"),
		w:   w,
		enc: enc,
	}
}

func (c *Console) Ship(ev event.Event) {
	payload, err := c.enc.Encode(ev)
	if err != nil {
		c.log.Warn("Could not encode event", "error", err)
		return
	}
	if _, err := c.w.Write(payload); err != nil {
		c.log.Warn("Could not ship event", "error", err)
	}
}

func (c *Console) Close() error {
	return nil
}

// Null discards every event.
type Null struct{}

func (Null) Ship(event.Event) {}

func (Null) Close() error {
	return nil
}

func buildConsole(log hclog.Logger, args clause.Args) (Sink, error) {
	if err := args.NoPositional(); err != nil {
		return nil, fmt.Errorf("stdout: %w", err)
	}
	if err := args.Known("bulk", "bulk_index", "bulk_type"); err != nil {
		return nil, fmt.Errorf("stdout: %w", err)
	}
	enc, err := EncoderFromArgs(args)
	if err != nil {
		return nil, fmt.Errorf("stdout: %w", err)
	}
	return NewConsole(log, os.Stdout, enc), nil
}

func buildNull(_ hclog.Logger, args clause.Args) (Sink, error) {
	if err := args.None(); err != nil {
		return nil, fmt.Errorf("null: %w", err)
	}
	return Null{}, nil
}
