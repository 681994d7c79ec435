// Package events implements the message bus surface of MediaStore: the
// CloudEvents-shaped envelope, the Kafka publisher for outbound events, and
// the consumer that reacts to events emitted by neighbouring services.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mediastore/mediastore/internal/collection"
)

// Source identifies this service in outbound envelopes.
const Source = "mediastore"

// Event types published and consumed on the bus.
const (
	TypeFileUploaded     = "mediastore.file_uploaded"
	TypeFileDeleted      = "mediastore.file_deleted"
	TypeFileScanned      = "mediastore.file_scanned"
	TypeMediafileChanged = "mediastore.mediafile_changed"
	TypeMediafileDeleted = "mediastore.mediafile_deleted"
)

// Envelope is the wire format for bus messages: a minimal CloudEvents-style
// header around a type-specific JSON payload.
type Envelope struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Source string          `json:"source"`
	Time   string          `json:"time"`
	Data   json.RawMessage `json:"data"`
}

// NewEnvelope builds an outbound envelope around the given payload.
func NewEnvelope(eventType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:     uuid.NewString(),
		Type:   eventType,
		Source: Source,
		Time:   time.Now().UTC().Format(time.RFC3339),
		Data:   raw,
	}, nil
}

// FileUploadedData is the payload of a file_uploaded event. Headers carries
// the auth headers forwarded from the uploading caller so downstream
// consumers can act with the same identity; TicketID is set for
// ticket-driven uploads.
type FileUploadedData struct {
	Mediafile *collection.Mediafile `json:"mediafile"`
	Mimetype  string                `json:"mimetype"`
	URL       string                `json:"url"`
	Headers   map[string]string     `json:"headers"`
	TicketID  string                `json:"ticket_id,omitempty"`
}

// FileDeletedData is the payload of a file_deleted event.
type FileDeletedData struct {
	Keys []string `json:"keys"`
}

// FileScannedData is the payload of an inbound file_scanned event from the
// virus scanner.
type FileScannedData struct {
	MediafileID   string `json:"mediafile_id"`
	Filename      string `json:"filename"`
	ClamavVersion string `json:"clamav_version"`
	Infected      bool   `json:"infected"`
}

// MediafileChangedData is the payload of an inbound mediafile_changed event
// from the collection service, carrying the record before and after the edit.
type MediafileChangedData struct {
	OldMediafile *collection.Mediafile `json:"old_mediafile"`
	Mediafile    *collection.Mediafile `json:"mediafile"`
}

// MediafileDeletedData is the payload of an inbound mediafile_deleted event
// from the collection service.
type MediafileDeletedData struct {
	Mediafile      *collection.Mediafile `json:"mediafile"`
	LinkedEntities []json.RawMessage     `json:"linked_entities"`
}
