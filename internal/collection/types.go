// Package collection implements the client for the external collection API,
// the service that owns mediafile metadata records and upload tickets.
package collection

import "strings"

// MetadataEntry is a single user-supplied descriptive metadata pair on a
// mediafile record. Entry order is not significant, but duplicate entries
// are, so records compare as multisets (see EqualMetadata).
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Mediafile is the metadata record owned by the collection service. This
// gateway reads and patches records; it never creates them.
type Mediafile struct {
	ID string `json:"_id,omitempty"`

	// Filename is the current (derived) object key; OriginalFilename keeps
	// the name the file was uploaded under.
	Filename         string `json:"filename,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`

	// Identifiers accumulates content fingerprints over the record's
	// history. Append-only: this system never removes an identifier.
	Identifiers []string `json:"identifiers"`

	Mimetype string          `json:"mimetype,omitempty"`
	Metadata []MetadataEntry `json:"metadata"`

	OriginalFileLocation  string `json:"original_file_location,omitempty"`
	ThumbnailFileLocation string `json:"thumbnail_file_location,omitempty"`
	TranscodeFilename     string `json:"transcode_filename,omitempty"`
	TranscodeFileLocation string `json:"transcode_file_location,omitempty"`

	// TechnicalMetadata holds machine-extracted facts from the file content
	// (embedded image tags and a best-guess creation date).
	TechnicalMetadata map[string]any `json:"technical_metadata,omitempty"`
}

// Ticket is an externally issued, time-limited authorization binding an
// upload or download to a bucket, key and optionally a mediafile record.
// Read-only from this system's perspective.
type Ticket struct {
	ID          string `json:"_id"`
	Bucket      string `json:"bucket,omitempty"`
	Location    string `json:"location,omitempty"`
	MediafileID string `json:"mediafile_id,omitempty"`
	Expired     bool   `json:"is_expired"`
}

// EqualMetadata reports whether two metadata entry lists are equal as
// multisets: equal length and one is a permutation of the other. A changed
// value for the same key, an added key, or a removed key all count as a
// difference; entry order never does.
func EqualMetadata(a, b []MetadataEntry) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[MetadataEntry]int, len(a))
	for _, e := range a {
		counts[e]++
	}
	for _, e := range b {
		counts[e]--
		if counts[e] < 0 {
			return false
		}
	}
	return true
}

// Stem returns the filename without its extension, used to derive transcode
// names from the original filename.
func Stem(filename string) string {
	if idx := strings.LastIndexByte(filename, '.'); idx > 0 {
		return filename[:idx]
	}
	return filename
}
