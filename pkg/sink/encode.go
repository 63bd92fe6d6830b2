package sink

import (
	json "github.com/goccy/go-json"
	"github.com/logship/logship/pkg/clause"
	"github.com/logship/logship/pkg/event"
)

// Encoder renders events into transport payloads, either as plain JSON
// documents or wrapped in the two-line bulk-index envelope understood by
// search engines.
type Encoder struct {
	Bulk      bool
	BulkIndex string
	BulkType  string
}

// EncoderFromArgs reads the bulk, bulk_index, and bulk_type arguments shared
// by sinks that encode events.
func EncoderFromArgs(args clause.Args) (Encoder, error) {
	bulk, err := args.Bool("bulk", false)
	if err != nil {
		return Encoder{}, err
	}
	return Encoder{
		Bulk:      bulk,
		BulkIndex: args.String("bulk_index", "logs"),
		BulkType:  args.String("bulk_type", "message"),
	}, nil
}

func (e Encoder) Encode(ev event.Event) ([]byte, error) {
	if e.Bulk {
		return EncodeBulk(e.BulkIndex, e.BulkType, ev)
	}
	return EncodeJSON(ev)
}

// EncodeJSON renders one event as a newline-terminated JSON document.
func EncodeJSON(ev event.Event) ([]byte, error) {
	doc, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return append(doc, '\n'), nil
}

type bulkCommand struct {
	Index bulkTarget `json:"index"`
}

type bulkTarget struct {
	Index string `json:"_index"`
	Type  string `json:"_type"`
}

// EncodeBulk renders one event as a bulk-index unit: a one-line index
// command naming the target index and document type, then the document,
// each newline-terminated.
func EncodeBulk(index, docType string, ev event.Event) ([]byte, error) {
	cmd, err := json.Marshal(bulkCommand{Index: bulkTarget{Index: index, Type: docType}})
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(cmd)+len(doc)+2)
	payload = append(payload, cmd...)
	payload = append(payload, '\n')
	payload = append(payload, doc...)
	payload = append(payload, '\n')
	return payload, nil
}
