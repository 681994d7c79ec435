package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mediastore/mediastore/internal/auth"
	"github.com/mediastore/mediastore/internal/collection"
	"github.com/mediastore/mediastore/internal/storage"
)

// RecordPatcher is the slice of the collection client the event handlers
// need: applying partial updates to mediafile records.
type RecordPatcher interface {
	PatchMediafile(ctx context.Context, creds auth.Credentials, id string, fields map[string]any) error
}

// ExtractFunc derives technical metadata from file content. Wired to the
// reconciliation engine's extractor in main.
type ExtractFunc func(r io.Reader, mimetype string) (map[string]any, error)

// Handlers reacts to inbound bus events. Consumers run with the service's
// static credentials; there is no caller to forward identity from.
type Handlers struct {
	Store      storage.ObjectStore
	Bucket     string
	Collection RecordPatcher
	Creds      auth.Credentials
	Extract    ExtractFunc
}

// HandleEnvelope dispatches one inbound envelope. Unknown types and
// malformed payloads are logged and dropped; redelivery would not fix them.
func (h *Handlers) HandleEnvelope(ctx context.Context, env Envelope) error {
	switch env.Type {
	case TypeFileScanned:
		var data FileScannedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			slog.Error("malformed file_scanned payload", "id", env.ID, "error", err)
			return nil
		}
		return h.handleFileScanned(ctx, data)
	case TypeMediafileChanged:
		var data MediafileChangedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			slog.Error("malformed mediafile_changed payload", "id", env.ID, "error", err)
			return nil
		}
		return h.handleMediafileChanged(ctx, data)
	case TypeMediafileDeleted:
		var data MediafileDeletedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			slog.Error("malformed mediafile_deleted payload", "id", env.ID, "error", err)
			return nil
		}
		return h.handleMediafileDeleted(ctx, data)
	default:
		// Events published by this service come back on the same topic.
		slog.Debug("ignoring event", "type", env.Type, "id", env.ID)
		return nil
	}
}

// handleFileScanned removes files the virus scanner flagged as infected.
func (h *Handlers) handleFileScanned(ctx context.Context, data FileScannedData) error {
	if data.MediafileID == "" || data.Filename == "" {
		slog.Error("malformed file_scanned payload: missing mediafile_id or filename")
		return nil
	}
	if !data.Infected {
		return nil
	}
	slog.Warn("removing infected file",
		"key", data.Filename, "mediafile_id", data.MediafileID, "clamav", data.ClamavVersion)
	return h.Store.DeleteMany(ctx, h.Bucket, []string{data.Filename})
}

// handleMediafileChanged refreshes the stored technical metadata when a
// record's descriptive metadata actually changed.
func (h *Handlers) handleMediafileChanged(ctx context.Context, data MediafileChangedData) error {
	if data.OldMediafile == nil || data.Mediafile == nil {
		slog.Error("malformed mediafile_changed payload: missing old_mediafile or mediafile")
		return nil
	}
	mf := data.Mediafile
	if mf.Mimetype == "" || mf.Filename == "" {
		return nil
	}
	if collection.EqualMetadata(data.OldMediafile.Metadata, mf.Metadata) {
		return nil
	}
	if h.Extract == nil {
		return nil
	}

	rc, _, err := h.Store.Get(ctx, h.Bucket, mf.Filename, nil)
	if err != nil {
		return fmt.Errorf("fetching %s for metadata refresh: %w", mf.Filename, err)
	}
	defer rc.Close()

	technical, err := h.Extract(rc, mf.Mimetype)
	if err != nil {
		slog.Warn("technical metadata extraction failed", "key", mf.Filename, "error", err)
		return nil
	}
	if len(technical) == 0 {
		return nil
	}
	return h.Collection.PatchMediafile(ctx, h.Creds, mf.ID, map[string]any{
		"technical_metadata": technical,
	})
}

// handleMediafileDeleted removes the record's stored files, the transcode
// included when present.
func (h *Handlers) handleMediafileDeleted(ctx context.Context, data MediafileDeletedData) error {
	if data.Mediafile == nil {
		slog.Error("malformed mediafile_deleted payload: missing mediafile")
		return nil
	}
	keys := []string{data.Mediafile.Filename}
	if data.Mediafile.TranscodeFilename != "" {
		keys = append(keys, data.Mediafile.TranscodeFilename)
	}
	if err := h.Store.DeleteMany(ctx, h.Bucket, keys); err != nil {
		slog.Error("deleting files for removed mediafile failed", "keys", keys, "error", err)
	}
	return nil
}
