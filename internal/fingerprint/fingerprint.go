// Package fingerprint computes content digests used for duplicate detection.
//
// The digest doubles as the object-key prefix, so it must be deterministic
// for identical bytes. MD5 is sufficient for accidental-collision resistance
// in this domain; it is not used for integrity against adversaries.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
)

// chunkSize is the read size used while hashing. Matches the 8 KiB reads the
// mimetype sniffer uses, keeping memory bounded for arbitrarily large files.
const chunkSize = 8 * 1024

// Compute streams rs through MD5 in 8 KiB chunks and returns the digest as a
// lowercase hex string. The stream is rewound to the start afterward so the
// caller can reuse it for the actual upload.
func Compute(rs io.ReadSeeker) (string, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding stream: %w", err)
	}

	h := md5.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := rs.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading stream: %w", err)
		}
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
