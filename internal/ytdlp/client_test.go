package ytdlp

import (
	"errors"
	"testing"

	"github.com/lrstanley/go-ytdlp"

	"github.com/hyperfield/yt-channel-downloader/internal/media"
	"github.com/hyperfield/yt-channel-downloader/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		kind      model.ErrorKind
		retryable bool
	}{
		{"format unavailable", "ERROR: Requested format is not available", model.ErrorKindDownload, true},
		{"forbidden", "ERROR: unable to download video data: HTTP Error 403: Forbidden", model.ErrorKindDownload, true},
		{"not found", "ERROR: HTTP Error 404: Not Found", model.ErrorKindDownload, true},
		{"dns failure", "ERROR: Temporary failure in name resolution", model.ErrorKindNetwork, false},
		{"refused", "Connection refused", model.ErrorKindNetwork, false},
		{"other", "ERROR: some postprocessing failure", model.ErrorKindDownload, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(errors.New(tt.msg))
			if got := media.KindOf(err); got != tt.kind {
				t.Errorf("KindOf = %q, want %q", got, tt.kind)
			}
			if got := media.IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func strPtr(s string) *string { return &s }
func fPtr(f float64) *float64 { return &f }
func intPtr(i int) *int       { return &i }

func TestMapInfo_NilSafety(t *testing.T) {
	if got := mapInfo(nil); got == nil || len(got.Formats) != 0 {
		t.Fatalf("mapInfo(nil) = %+v", got)
	}

	info := &ytdlp.ExtractedInfo{
		Title:    strPtr("clip"),
		Duration: fPtr(120),
		Formats: []*ytdlp.ExtractedFormat{
			nil,
			{
				FormatID:  strPtr("137"),
				Extension: strPtr("mp4"),
				Height:    fPtr(1080),
				TBR:       fPtr(4400),
				VCodec:    strPtr("avc1"),
				ACodec:    strPtr("none"),
				FileSize:  intPtr(52_000_000),
			},
			{
				FormatID:       strPtr("140"),
				Extension:      strPtr("m4a"),
				ABR:            fPtr(128),
				VCodec:         strPtr("none"),
				ACodec:         strPtr("mp4a.40.2"),
				FileSizeApprox: intPtr(1_900_000),
			},
			{}, // everything nil
		},
	}
	got := mapInfo(info)

	if got.Title != "clip" || got.DurationSec != 120 {
		t.Errorf("header = %q/%v", got.Title, got.DurationSec)
	}
	if len(got.Formats) != 3 {
		t.Fatalf("formats = %d, want 3 (nil entry skipped)", len(got.Formats))
	}

	video := got.Formats[0]
	if !video.HasVideo || video.HasAudio {
		t.Errorf("video tracks = %v/%v", video.HasVideo, video.HasAudio)
	}
	if video.Height != 1080 || video.Filesize != 52_000_000 {
		t.Errorf("video = %+v", video)
	}

	audio := got.Formats[1]
	if audio.HasVideo || !audio.HasAudio {
		t.Errorf("audio tracks = %v/%v", audio.HasVideo, audio.HasAudio)
	}
	if audio.Filesize != 1_900_000 {
		t.Errorf("approx filesize not used: %+v", audio)
	}

	empty := got.Formats[2]
	if empty.HasVideo || empty.HasAudio || empty.Filesize != 0 {
		t.Errorf("empty format = %+v", empty)
	}
}
