package fanout

import (
	"fmt"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"pageviews/internal/domain"
)

const (
	KindSingle = "single"
	KindMulti  = "multi"

	HeaderKind    = "Pageviews-Kind"
	HeaderDurable = "Pageviews-Durable"
)

// Message is one queued payload. Body is the batch in its JSON wire form.
type Message struct {
	ID   string
	Kind string
	Body []byte
}

// NewMessage encodes batch as a durable message of the given kind.
func NewMessage(kind string, batch domain.BatchRequest) (*Message, error) {
	body, err := gojson.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &Message{ID: uuid.NewString(), Kind: kind, Body: body}, nil
}

// NATS renders the message for the given subject.
func (m *Message) NATS(subject string) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = m.Body
	msg.Header.Set(nats.MsgIdHdr, m.ID)
	msg.Header.Set(HeaderKind, m.Kind)
	msg.Header.Set(HeaderDurable, "true")
	return msg
}

// DecodeBody parses a message body back into {page: {timestamp: count}}.
func DecodeBody(body []byte) (map[string]map[string]int64, error) {
	var out map[string]map[string]int64
	if err := gojson.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}
