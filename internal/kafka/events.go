package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
)

const (
	EventDocumentAdded    = "DocumentAdded"
	EventDocumentModified = "DocumentModified"
	EventDocumentRemoved  = "DocumentRemoved"
)

var eventKinds = map[string]docstore.Kind{
	EventDocumentAdded:    docstore.Added,
	EventDocumentModified: docstore.Modified,
	EventDocumentRemoved:  docstore.Removed,
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // document id
	Payload       json.RawMessage `json:"payload"`
}

type DocumentChangedPayload struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Version    int64           `json:"version"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func eventType(k docstore.Kind) string {
	switch k {
	case docstore.Added:
		return EventDocumentAdded
	case docstore.Removed:
		return EventDocumentRemoved
	default:
		return EventDocumentModified
	}
}

// NewEnvelope wraps a committed change for the wire.
func NewEnvelope(c docstore.Change, producer string) (Envelope, error) {
	payload, err := json.Marshal(DocumentChangedPayload{
		Collection: c.Collection,
		ID:         c.Doc.ID,
		Version:    c.Doc.Version,
		Data:       c.Doc.Data,
		UpdatedAt:  c.Doc.UpdatedAt,
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType(c.Kind),
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: c.Doc.ID,
		Payload:       payload,
	}, nil
}

// Change restores the store change carried by the envelope.
func (e Envelope) Change() (docstore.Change, error) {
	kind, ok := eventKinds[e.EventType]
	if !ok {
		return docstore.Change{}, fmt.Errorf("unknown event type %q", e.EventType)
	}
	p, err := UnwrapPayload[DocumentChangedPayload](e.Payload)
	if err != nil {
		return docstore.Change{}, err
	}
	return docstore.Change{
		Kind:       kind,
		Collection: p.Collection,
		Doc: docstore.Document{
			ID:        p.ID,
			Version:   p.Version,
			Data:      p.Data,
			UpdatedAt: p.UpdatedAt,
		},
	}, nil
}
