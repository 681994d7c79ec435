// Package reconcile implements the upload reconciliation engine: content
// fingerprinting, duplicate detection, the metadata merge-or-discard policy,
// key naming, and event emission.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mediastore/mediastore/internal/auth"
	"github.com/mediastore/mediastore/internal/collection"
	"github.com/mediastore/mediastore/internal/events"
	"github.com/mediastore/mediastore/internal/fingerprint"
	"github.com/mediastore/mediastore/internal/mediatype"
	"github.com/mediastore/mediastore/internal/storage"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// RecordService is the slice of the collection client the engine needs.
type RecordService interface {
	GetMediafile(ctx context.Context, creds auth.Credentials, id string) (*collection.Mediafile, error)
	UpdateMediafile(ctx context.Context, creds auth.Credentials, mf *collection.Mediafile) error
	PatchMediafile(ctx context.Context, creds auth.Credentials, id string, fields map[string]any) error
	DeleteMediafile(ctx context.Context, creds auth.Credentials, id string) error
	GetTicket(ctx context.Context, creds auth.Credentials, id string) (*collection.Ticket, error)
}

// Engine orchestrates uploads. It is stateless; every dependency is
// established once at startup.
type Engine struct {
	Store      storage.ObjectStore
	Bucket     string
	Collection RecordService
	Publisher  events.Publisher

	// PublicBaseURL is the externally visible base URL of this gateway,
	// prepended to download locations in file_uploaded events.
	PublicBaseURL string

	// CheckDuplicates toggles fingerprint duplicate detection.
	CheckDuplicates bool
}

// UploadRequest describes one upload. Either MediafileID or TicketID must be
// set; Key optionally overrides the basename derived from Filename.
type UploadRequest struct {
	File        io.ReadSeeker
	Filename    string
	Key         string
	MediafileID string
	TicketID    string
}

// UploadResult reports a stored upload.
type UploadResult struct {
	Key         string
	Fingerprint string
	Mimetype    string
	Mediafile   *collection.Mediafile
	URL         string
}

// UploadFile runs the primary upload flow: resolve the target record,
// fingerprint the stream, detect duplicates, store the bytes, update the
// record, and emit the file_uploaded event.
func (e *Engine) UploadFile(ctx context.Context, creds auth.Credentials, req UploadRequest) (*UploadResult, error) {
	mf, ticket, err := e.resolveTarget(ctx, creds, req)
	if err != nil {
		return nil, err
	}

	fp, err := fingerprint.Compute(req.File)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting %s: %w", req.Filename, err)
	}
	mt, err := mediatype.Detect(req.File, req.Filename)
	if err != nil {
		return nil, fmt.Errorf("detecting mimetype of %s: %w", req.Filename, err)
	}

	base := req.Key
	if ticket != nil && ticket.Location != "" {
		base = ticket.Location
	}
	if base == "" {
		base = req.Filename
	}
	if base == "" {
		return nil, mserr.ErrPreconditionFailed.WithMessagef("upload has no resolvable filename")
	}
	key := fp + "-" + base

	if e.CheckDuplicates {
		existing, err := e.Store.ListByPrefix(ctx, e.Bucket, fp)
		if err != nil {
			return nil, fmt.Errorf("checking for existing content: %w", err)
		}
		if len(existing) > 0 {
			// The delete branch of the policy must target the record the
			// upload actually resolved, which for ticket uploads is the
			// ticket's embedded mediafile id rather than the request's.
			targetID := req.MediafileID
			if mf != nil {
				targetID = mf.ID
			}
			return nil, e.handleDuplicate(ctx, creds, mf, targetID, fp, existing[0], req.Filename, mt)
		}
	}

	technical, err := e.extractTechnical(req.File, mt)
	if err != nil {
		slog.Warn("technical metadata extraction failed", "filename", req.Filename, "error", err)
	}

	size, err := streamSize(req.File)
	if err != nil {
		return nil, fmt.Errorf("sizing %s: %w", req.Filename, err)
	}
	if err := e.Store.Put(ctx, e.Bucket, key, req.File, size); err != nil {
		return nil, fmt.Errorf("storing %s: %w", key, err)
	}

	result := &UploadResult{Key: key, Fingerprint: fp, Mimetype: mt, Mediafile: mf}
	if mf != nil {
		e.relinkRecord(mf, fp, key, mt)
		if technical != nil {
			mf.TechnicalMetadata = technical
		}
		if err := e.Collection.UpdateMediafile(ctx, creds, mf); err != nil {
			return nil, fmt.Errorf("updating mediafile %s: %w", mf.ID, err)
		}
		result.URL = e.PublicBaseURL + mf.OriginalFileLocation
	}

	events.PublishBestEffort(ctx, e.Publisher, key, events.TypeFileUploaded, events.FileUploadedData{
		Mediafile: mf,
		Mimetype:  mt,
		URL:       result.URL,
		Headers:   creds.Headers(),
		TicketID:  req.TicketID,
	})
	return result, nil
}

// UploadTranscode stores a derivative rendition and registers it on the
// primary record without rewriting the record's own file fields.
func (e *Engine) UploadTranscode(ctx context.Context, creds auth.Credentials, req UploadRequest) (*UploadResult, error) {
	if req.MediafileID == "" {
		return nil, mserr.ErrPreconditionFailed.WithMessagef("transcode upload requires a mediafile id")
	}
	mf, err := e.Collection.GetMediafile(ctx, creds, req.MediafileID)
	if err != nil {
		return nil, err
	}

	fp, err := fingerprint.Compute(req.File)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting transcode: %w", err)
	}

	base := req.Key
	if base == "" {
		base = req.Filename
	}
	if base == "" {
		// Derive the rendition name from the record when the part is unnamed.
		original := mf.OriginalFilename
		if original == "" {
			original = mf.Filename
		}
		if original == "" {
			return nil, mserr.ErrPreconditionFailed.WithMessagef("transcode upload has no resolvable filename")
		}
		base = collection.Stem(original) + ".jpg"
	}
	key := fp + "-transcode-" + base

	if _, err := e.Store.HeadInfo(ctx, e.Bucket, key); err == nil {
		return nil, &mserr.DuplicateFileError{
			Message:     fmt.Sprintf("Duplicate file %s matches existing file %s.", base, key),
			ExistingKey: key,
			Fingerprint: fp,
			Outcome:     mserr.DuplicateKeyCollision,
		}
	} else if !errors.Is(err, mserr.ErrFileNotFound) {
		return nil, fmt.Errorf("checking for existing transcode %s: %w", key, err)
	}

	size, err := streamSize(req.File)
	if err != nil {
		return nil, fmt.Errorf("sizing transcode: %w", err)
	}
	if err := e.Store.Put(ctx, e.Bucket, key, req.File, size); err != nil {
		return nil, fmt.Errorf("storing %s: %w", key, err)
	}

	identifiers := append(mf.Identifiers, fp)
	fields := map[string]any{
		"identifiers":             identifiers,
		"transcode_filename":      key,
		"transcode_file_location": "/download/" + key,
		"thumbnail_file_location": thumbnailLocation(key),
	}
	if err := e.Collection.PatchMediafile(ctx, creds, req.MediafileID, fields); err != nil {
		return nil, fmt.Errorf("registering transcode on mediafile %s: %w", req.MediafileID, err)
	}
	mf.Identifiers = identifiers
	mf.TranscodeFilename = key
	mf.TranscodeFileLocation = "/download/" + key
	mf.ThumbnailFileLocation = thumbnailLocation(key)

	return &UploadResult{Key: key, Fingerprint: fp, Mediafile: mf}, nil
}

// CheckTicket validates a download ticket. Every failure to produce a live
// ticket, including a missing or unknown id, surfaces as a precondition
// failure so the caller gets a 400 rather than a 404.
func (e *Engine) CheckTicket(ctx context.Context, creds auth.Credentials, ticketID string) error {
	if ticketID == "" {
		return mserr.ErrPreconditionFailed.WithMessagef("download requires a ticket")
	}
	t, err := e.Collection.GetTicket(ctx, creds, ticketID)
	if err != nil {
		return mserr.ErrPreconditionFailed.WithMessagef("ticket %s is not valid: %v", ticketID, err)
	}
	if t.Expired {
		return mserr.ErrPreconditionFailed.WithMessagef("ticket %s is expired", ticketID)
	}
	return nil
}

// Unique reports the key of an existing object with the given fingerprint,
// or "" when the fingerprint is unused.
func (e *Engine) Unique(ctx context.Context, fp string) (string, error) {
	existing, err := e.Store.ListByPrefix(ctx, e.Bucket, fp)
	if err != nil {
		return "", fmt.Errorf("listing by fingerprint: %w", err)
	}
	if len(existing) == 0 {
		return "", nil
	}
	return existing[0], nil
}

// DeleteFiles removes keys from the store and emits a file_deleted event.
func (e *Engine) DeleteFiles(ctx context.Context, keys []string) error {
	if err := e.Store.DeleteMany(ctx, e.Bucket, keys); err != nil {
		return err
	}
	eventKey := ""
	if len(keys) > 0 {
		eventKey = keys[0]
	}
	events.PublishBestEffort(ctx, e.Publisher, eventKey, events.TypeFileDeleted, events.FileDeletedData{Keys: keys})
	return nil
}

// resolveTarget resolves the mediafile record and ticket for an upload. At
// least one of mediafile id and ticket id is required. A missing record is
// fatal unless a ticket covers the upload intent.
func (e *Engine) resolveTarget(ctx context.Context, creds auth.Credentials, req UploadRequest) (*collection.Mediafile, *collection.Ticket, error) {
	if req.MediafileID == "" && req.TicketID == "" {
		return nil, nil, mserr.ErrPreconditionFailed.WithMessagef("upload requires a mediafile id or a ticket")
	}

	var ticket *collection.Ticket
	if req.TicketID != "" {
		t, err := e.Collection.GetTicket(ctx, creds, req.TicketID)
		if err != nil {
			return nil, nil, err
		}
		if t.Expired {
			return nil, nil, mserr.ErrPreconditionFailed.WithMessagef("ticket %s is expired", req.TicketID)
		}
		ticket = t
	}

	mediafileID := req.MediafileID
	if mediafileID == "" && ticket != nil {
		mediafileID = ticket.MediafileID
	}
	if mediafileID == "" {
		return nil, ticket, nil
	}

	mf, err := e.Collection.GetMediafile(ctx, creds, mediafileID)
	if err != nil {
		if ticket != nil && errors.Is(err, mserr.ErrNotFound) {
			// Ticket authorizes the upload on its own; tolerate the absent record.
			return nil, ticket, nil
		}
		return nil, nil, err
	}
	return mf, ticket, nil
}

// handleDuplicate applies the duplicate handling policy. The fingerprint
// doubles as a possible mediafile identifier for previously registered
// unique content; whether it resolves decides the branch. The returned error
// is always a DuplicateFileError and no bytes are written for the duplicate.
func (e *Engine) handleDuplicate(ctx context.Context, creds auth.Credentials, mf *collection.Mediafile, mediafileID, fp, existingKey, filename, mt string) error {
	message := fmt.Sprintf("Duplicate file %s matches existing file %s.", filename, existingKey)

	sibling, err := e.Collection.GetMediafile(ctx, creds, fp)
	if err != nil {
		// No record registered under the fingerprint: relink the target
		// record at the existing object so future reads resolve.
		if mf != nil {
			e.relinkRecord(mf, fp, existingKey, mt)
			if err := e.Collection.UpdateMediafile(ctx, creds, mf); err != nil {
				slog.Warn("relinking mediafile to existing object failed", "id", mf.ID, "error", err)
			}
		}
		message += " No existing mediafile for file found, not deleting new one."
		return &mserr.DuplicateFileError{
			Message:     message,
			ExistingKey: existingKey,
			Fingerprint: fp,
			Outcome:     mserr.DuplicateNoExistingRecord,
		}
	}

	if mediafileID != "" && (mf == nil || sibling.ID != mf.ID) {
		if err := e.Collection.DeleteMediafile(ctx, creds, mediafileID); err != nil {
			slog.Warn("deleting redundant mediafile failed", "id", mediafileID, "error", err)
		}
	}
	message += " Existing mediafile for file found, deleting new one."

	outcome := mserr.DuplicateMetadataUnchanged
	if mf != nil && !collection.EqualMetadata(sibling.Metadata, mf.Metadata) {
		message += " Metadata not up-to-date, updating."
		outcome = mserr.DuplicateMetadataUpdated
		patch := map[string]any{"metadata": mf.Metadata}
		if err := e.Collection.PatchMediafile(ctx, creds, fp, patch); err != nil {
			slog.Warn("updating metadata on existing mediafile failed", "id", fp, "error", err)
		}
	}
	return &mserr.DuplicateFileError{
		Message:     message,
		ExistingKey: existingKey,
		Fingerprint: fp,
		Outcome:     outcome,
	}
}

// relinkRecord points a record at the stored object under key.
func (e *Engine) relinkRecord(mf *collection.Mediafile, fp, key, mt string) {
	mf.Identifiers = append(mf.Identifiers, fp)
	mf.OriginalFilename = mf.Filename
	mf.Filename = key
	mf.OriginalFileLocation = "/download/" + key
	mf.ThumbnailFileLocation = thumbnailLocation(key)
	mf.Mimetype = mt
}

// extractTechnical runs EXIF extraction with the stream rewound before and
// after, so the subsequent store put starts at position zero.
func (e *Engine) extractTechnical(rs io.ReadSeeker, mt string) (map[string]any, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	technical, err := ExtractTechnicalMetadata(rs, mt)
	if _, serr := rs.Seek(0, io.SeekStart); serr != nil {
		return nil, serr
	}
	return technical, err
}

// thumbnailLocation derives the IIIF thumbnail path for a stored key.
func thumbnailLocation(key string) string {
	return fmt.Sprintf("/iiif/3/%s/full/,150/0/default.jpg", key)
}

// streamSize measures the stream length and rewinds to the start.
func streamSize(rs io.ReadSeeker) (int64, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return size, nil
}
