package meals

import (
	"bytes"
	"strconv"
	"time"

	"github.com/cozy/goexif2/exif"
)

const exifDateTimeLayout = "2006:01:02 15:04:05"

// capture is the resolved outcome of the timestamp priority chain:
// the instant to store (nil when only the server clock was available),
// the local hour used for classification, and the calendar date key.
type capture struct {
	takenAt *time.Time
	hour    int
	date    string
}

// resolveCapture derives the authoritative capture time for an upload.
// Candidate sources are tried in strict priority order: the client's
// explicit timestamp, then embedded EXIF metadata, then the server
// clock. Malformed candidates are treated as absent, never as errors.
// A valid client hour overrides the classification hour only; the
// stored timestamp still comes from the chain above.
func resolveCapture(clientTimestamp, clientHour string, photo []byte, now func() time.Time) capture {
	var resolved capture

	if ts, ok := parseClientTimestamp(clientTimestamp); ok {
		resolved.takenAt = &ts
		resolved.hour = ts.Hour()
		resolved.date = ts.Format("2006-01-02")
	} else if ts, ok := captureTimeFromEXIF(photo); ok {
		resolved.takenAt = &ts
		resolved.hour = ts.Hour()
		resolved.date = ts.Format("2006-01-02")
	} else {
		serverNow := now()
		resolved.hour = serverNow.Hour()
		resolved.date = serverNow.Format("2006-01-02")
	}

	if hour, ok := parseClientHour(clientHour); ok {
		resolved.hour = hour
	}

	return resolved
}

func parseClientTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func parseClientHour(value string) (int, bool) {
	if value == "" {
		return 0, false
	}
	hour, err := strconv.Atoi(value)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	return hour, true
}

// captureTimeFromEXIF extracts DateTimeOriginal from the uploaded
// bytes. The EXIF layout uses colon-delimited dates; values are
// interpreted in server-local time since EXIF carries no zone.
func captureTimeFromEXIF(photo []byte) (time.Time, bool) {
	ex, err := exif.Decode(bytes.NewReader(photo))
	if ex == nil || (err != nil && exif.IsCriticalError(err)) {
		return time.Time{}, false
	}
	tag, err := ex.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, false
	}
	value, err := tag.StringVal()
	if err != nil {
		return time.Time{}, false
	}
	return parseEXIFDateTime(value)
}

func parseEXIFDateTime(value string) (time.Time, bool) {
	ts, err := time.ParseInLocation(exifDateTimeLayout, value, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
