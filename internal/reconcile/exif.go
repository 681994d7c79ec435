package reconcile

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// creationDateTags is the priority-ordered list of date-bearing tags scanned
// for the best-guess file creation date.
var creationDateTags = []exif.FieldName{
	exif.DateTimeOriginal,
	exif.DateTimeDigitized,
	exif.DateTime,
	exif.GPSDateStamp,
}

// ExtractTechnicalMetadata derives machine-extracted facts from image
// content: all embedded EXIF tags converted to JSON-safe values, plus a
// best-guess "file_creation_date". Non-image content yields nil. Images
// without EXIF data still yield a map with a null creation date.
func ExtractTechnicalMetadata(r io.Reader, mimetype string) (map[string]any, error) {
	if !strings.HasPrefix(mimetype, "image/") {
		return nil, nil
	}

	technical := map[string]any{"file_creation_date": nil}
	x, err := exif.Decode(r)
	if err != nil {
		// No EXIF segment, or a format goexif cannot read.
		return technical, nil
	}

	x.Walk(tagCollector(technical))

	for _, name := range creationDateTags {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		raw, err := tag.StringVal()
		if err != nil {
			continue
		}
		technical["file_creation_date"] = parseExifDate(strings.TrimRight(raw, "\x00"))
		break
	}
	return technical, nil
}

// tagCollector walks all EXIF fields into the map.
type tagCollector map[string]any

func (c tagCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	c[string(name)] = tagValue(tag)
	return nil
}

// tagValue converts one tag to a JSON-safe value. Rationals become decimal
// strings; undecodable binary becomes the "(binary)" placeholder.
func tagValue(tag *tiff.Tag) any {
	count := int(tag.Count)
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return "(binary)"
		}
		return strings.TrimRight(s, "\x00")
	case tiff.IntVal:
		if count == 1 {
			v, err := tag.Int64(0)
			if err != nil {
				return "(binary)"
			}
			return v
		}
		vals := make([]any, 0, count)
		for i := 0; i < count; i++ {
			v, err := tag.Int64(i)
			if err != nil {
				return "(binary)"
			}
			vals = append(vals, v)
		}
		return vals
	case tiff.FloatVal:
		if count == 1 {
			v, err := tag.Float(0)
			if err != nil {
				return "(binary)"
			}
			return v
		}
		vals := make([]any, 0, count)
		for i := 0; i < count; i++ {
			v, err := tag.Float(i)
			if err != nil {
				return "(binary)"
			}
			vals = append(vals, v)
		}
		return vals
	case tiff.RatVal:
		if count == 1 {
			return ratString(tag, 0)
		}
		vals := make([]any, 0, count)
		for i := 0; i < count; i++ {
			vals = append(vals, ratString(tag, i))
		}
		return vals
	default:
		return asciiOrPlaceholder(tag.Val)
	}
}

// ratString renders a rational tag component as a decimal string.
func ratString(tag *tiff.Tag, i int) string {
	num, den, err := tag.Rat2(i)
	if err != nil || den == 0 {
		return "(binary)"
	}
	if num%den == 0 {
		return strconv.FormatInt(num/den, 10)
	}
	return strconv.FormatFloat(float64(num)/float64(den), 'f', -1, 64)
}

// asciiOrPlaceholder best-effort decodes raw bytes as printable ASCII.
func asciiOrPlaceholder(raw []byte) string {
	trimmed := strings.TrimRight(string(raw), "\x00")
	for _, b := range []byte(trimmed) {
		if b < 0x20 || b > 0x7e {
			return "(binary)"
		}
	}
	return trimmed
}

// parseExifDate normalizes an EXIF date string to ISO-8601, falling back to
// the raw string when it does not parse.
func parseExifDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006:01:02 15:04:05", raw); err == nil {
		return t.Format("2006-01-02T15:04:05")
	}
	if t, err := time.Parse("2006:01:02", raw); err == nil {
		return t.Format("2006-01-02")
	}
	return raw
}
