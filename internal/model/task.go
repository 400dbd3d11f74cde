package model

import (
	"strings"
	"time"

	"github.com/hyperfield/yt-channel-downloader/internal/progress"
)

// ErrorKind classifies a task failure for reporting purposes
type ErrorKind string

const (
	// ErrorKindResolution means formats/metadata could not be determined
	ErrorKindResolution ErrorKind = "Resolution error"

	// ErrorKindDownload means the transfer itself failed
	ErrorKindDownload ErrorKind = "Download error"

	// ErrorKindNetwork means a connectivity failure
	ErrorKindNetwork ErrorKind = "Network error"

	// ErrorKindUnexpected is the catch-all for unforeseen failures
	ErrorKindUnexpected ErrorKind = "Unexpected error"
)

// DownloadTask represents a single download task. Index is the stable row
// identity assigned by the caller; ID is a correlation identifier for logs.
type DownloadTask struct {
	Index          int
	ID             string
	URL            string
	Title          string
	OutputTemplate string
	Status         TaskStatus
	Percent        float64   // 0 to 100
	SpeedBPS       float64   // last observed rate in bytes/sec, 0 if unknown
	Speed          string    // human readable speed (e.g., "1.2 MB/s")
	LastEmit       time.Time // when the last progress event was emitted
	ErrKind        ErrorKind // set when Status is Failed
	Reason         string    // short classified reason, not the full error text
	StartedAt      time.Time
	FinishedAt     time.Time
	DurationSec    int   // media duration when known, 0 otherwise
	FileSize       int64 // estimated size in bytes, <=0 if unknown
}

// Snapshot returns a read-only copy of the task state
func (dt *DownloadTask) Snapshot() DownloadTask {
	return *dt
}

// GetETAString returns the remaining time at the last observed speed in the
// same shape the estimation results use, or an em dash if it cannot be
// computed
func (dt *DownloadTask) GetETAString() string {
	if dt.SpeedBPS <= 0 || dt.FileSize <= 0 || dt.Percent >= 100 {
		return progress.UnknownValue
	}
	remaining := float64(dt.FileSize) * (1 - dt.Percent/100)
	etaSec := remaining / dt.SpeedBPS
	if etaSec < 1 {
		return progress.UnknownValue
	}
	return progress.FormatETA(etaSec)
}

// GetDisplayTitle returns the title or the URL in order of preference
func (dt *DownloadTask) GetDisplayTitle() string {
	if dt.Title != "" && !strings.HasPrefix(dt.Title, "http") {
		return dt.Title
	}
	return dt.URL
}
