package redisq

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/logship/logship/pkg/clause"
	"github.com/logship/logship/pkg/event"
	"github.com/logship/logship/pkg/sink"
)

// Sink pushes each event onto a Redis list with LPUSH, spreading load and
// failover across its endpoints.
type Sink struct {
	log    hclog.Logger
	pool   *Pool
	client *Client
	key    string
	enc    sink.Encoder
}

func New(log hclog.Logger, endpoints []Endpoint, key string, enc sink.Encoder) *Sink {
	log = log.Named("redis")
	pool := NewPool(log, endpoints, 0, nil)
	return &Sink{
		log:    log,
		pool:   pool,
		client: NewClient(log, pool),
		key:    key,
		enc:    enc,
	}
}

func (s *Sink) Ship(ev event.Event) {
	payload, err := s.enc.Encode(ev)
	if err != nil {
		s.log.Warn("Could not encode event", "error", err)
		return
	}
	if _, err := s.client.Do("LPUSH", s.key, payload); err != nil {
		s.log.Warn("Could not ship event", "key", s.key, "error", err)
	}
}

func (s *Sink) Close() error {
	return s.pool.Close()
}

// Register adds the queue sink to the registry under the name "redis".
func Register(r *sink.Registry) error {
	if err := r.Register("redis", build); err != nil {
		return err
	}
	r.Document("redis", `redis,URL[,URL...][,key=NAME][,bulk=BOOL][,bulk_index=NAME][,bulk_type=NAME]

Pushes each event onto a Redis list with LPUSH. Connections rotate
round-robin across the endpoint URLs (redis://[host][:port][/db]), and a
failed push is retried once per endpoint before the event is dropped. key
names the list, "logs" by default. With bulk=true events are wrapped in the
two-line bulk-index envelope; bulk_index and bulk_type name the target index
and document type.`)
	return nil
}

func build(log hclog.Logger, args clause.Args) (sink.Sink, error) {
	if err := args.Known("key", "bulk", "bulk_index", "bulk_type"); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	urls := args.Positional()
	if len(urls) == 0 {
		return nil, fmt.Errorf("redis: %w: at least one endpoint URL is required", clause.ErrArgs)
	}
	endpoints, err := ParseEndpoints(urls)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	enc, err := sink.EncoderFromArgs(args)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return New(log, endpoints, args.String("key", "logs"), enc), nil
}
