// Package mediatype resolves MIME types from file content and filenames.
package mediatype

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Fallback is the generic MIME type returned when neither magic bytes nor
// the filename extension identify the content.
const Fallback = "application/octet-stream"

// sniffSize is how much of the stream the magic-byte detector inspects.
const sniffSize = 8 * 1024

// Detect sniffs the first 8 KiB of rs for magic bytes. If sniffing yields
// only the generic fallback type, the filename extension is consulted
// instead. The stream is rewound to the start before returning.
func Detect(rs io.ReadSeeker, filename string) (string, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding stream: %w", err)
	}

	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(rs, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("sniffing stream: %w", err)
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding stream: %w", err)
	}

	// mimetype returns "text/plain; charset=..." style parameters for text;
	// strip them so callers compare plain types.
	mt := mimetype.Detect(buf[:n])
	detected := mt.String()
	if base, _, err := mime.ParseMediaType(detected); err == nil {
		detected = base
	}

	if detected != Fallback {
		return detected, nil
	}
	return FromFilename(filename), nil
}

// FromFilename resolves a MIME type from the filename extension alone,
// returning the generic fallback when the extension is unknown.
func FromFilename(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return Fallback
	}
	mt := mime.TypeByExtension(ext)
	if mt == "" {
		return Fallback
	}
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		return base
	}
	return mt
}
