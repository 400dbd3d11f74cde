package ytdlp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/hyperfield/yt-channel-downloader/internal/media"
	"github.com/hyperfield/yt-channel-downloader/internal/model"
)

// ProgressInterval is how often yt-dlp reports download progress. The
// Tracker throttles emission further downstream, so this only bounds
// hook overhead.
const ProgressInterval = 500 * time.Millisecond

// Error text signatures that make an attempt worth retrying with a
// relaxed selector.
var retryableSignatures = []string{
	"Requested format is not available",
	"HTTP Error 403",
	"HTTP Error 404",
}

// Error text signatures pointing at connectivity rather than the media
var networkSignatures = []string{
	"Unable to download",
	"Connection refused",
	"Connection reset",
	"timed out",
	"Temporary failure in name resolution",
	"getaddrinfo",
	"EOF occurred",
}

// Client implements media.Resolver and media.Executor on top of the
// yt-dlp binary.
type Client struct{}

// NewClient returns a Client. The yt-dlp binary must be reachable on
// PATH; go-ytdlp reports a run error otherwise.
func NewClient() *Client {
	return &Client{}
}

// Resolve fetches metadata without downloading and maps it nil-safely
// into a MediaInfo.
func (c *Client) Resolve(ctx context.Context, url string) (*model.MediaInfo, error) {
	dl := ytdlp.New().
		SkipDownload().
		NoWarnings()

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, media.NewError(model.ErrorKindResolution, err)
	}

	infos, err := result.GetExtractedInfo()
	if err != nil || len(infos) == 0 {
		return nil, media.NewError(model.ErrorKindResolution, errors.New("no metadata extracted"))
	}
	return mapInfo(infos[0]), nil
}

// Download runs one yt-dlp transfer for the request. The progress hook
// is bridged onto the request's ProgressFunc; when the hook asks for an
// abort the run context is cancelled, which yt-dlp honors between
// fragments.
func (c *Client) Download(ctx context.Context, req media.Request) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		NoWarnings().
		Output(req.OutputTemplate)

	if req.Format != "" {
		dl = dl.Format(req.Format)
	}
	if req.ExtractAudio {
		dl = dl.ExtractAudio()
		if req.AudioCodec != "" {
			dl = dl.AudioFormat(req.AudioCodec)
		}
	}
	if req.Proxy != "" {
		dl = dl.Proxy(req.Proxy)
	}

	var hookMu sync.Mutex
	var hookErr error
	if req.OnProgress != nil {
		dl.ProgressFunc(ProgressInterval, func(update ytdlp.ProgressUpdate) {
			hookMu.Lock()
			defer hookMu.Unlock()
			if hookErr != nil {
				return
			}
			rate := progressRate(update)
			if err := req.OnProgress(int64(update.DownloadedBytes), int64(update.TotalBytes), rate); err != nil {
				hookErr = err
				cancel()
			}
		})
	}

	_, err := dl.Run(runCtx, req.URL)
	hookMu.Lock()
	aborted := hookErr
	hookMu.Unlock()
	if err == nil {
		return nil
	}
	if aborted != nil {
		return aborted
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return media.ErrCancelled
	}
	return classify(err)
}

// progressRate derives a byte rate from the update's own start time,
// the same way the upstream tool computes its displayed speed.
func progressRate(update ytdlp.ProgressUpdate) float64 {
	if update.Started.IsZero() {
		return 0
	}
	elapsed := time.Since(update.Started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(update.DownloadedBytes) / elapsed
}

// classify maps a yt-dlp run error onto the error taxonomy. Format and
// access refusals are retryable with a relaxed selector; connectivity
// problems are network errors; the rest count as download failures.
func classify(err error) error {
	msg := err.Error()
	for _, sig := range retryableSignatures {
		if strings.Contains(msg, sig) {
			return media.NewRetryable(err)
		}
	}
	for _, sig := range networkSignatures {
		if strings.Contains(msg, sig) {
			return media.NewError(model.ErrorKindNetwork, err)
		}
	}
	return media.NewError(model.ErrorKindDownload, err)
}

// mapInfo converts extracted metadata, every field of which may be nil,
// into the internal MediaInfo shape.
func mapInfo(info *ytdlp.ExtractedInfo) *model.MediaInfo {
	if info == nil {
		return &model.MediaInfo{}
	}
	out := &model.MediaInfo{
		Title:       derefString(info.Title),
		DurationSec: int(derefFloat(info.Duration)),
	}
	for _, f := range info.Formats {
		if f == nil {
			continue
		}
		out.Formats = append(out.Formats, mapFormat(f))
	}
	return out
}

func mapFormat(f *ytdlp.ExtractedFormat) model.FormatCandidate {
	fc := model.FormatCandidate{
		ID:          derefString(f.FormatID),
		Ext:         derefString(f.Extension),
		Height:      int(derefFloat(f.Height)),
		BitrateKbps: derefFloat(f.TBR),
	}
	fc.AudioBitrateKbps = derefFloat(f.ABR)
	fc.HasVideo = hasCodec(f.VCodec)
	fc.HasAudio = hasCodec(f.ACodec)
	if size := derefInt(f.FileSize); size > 0 {
		fc.Filesize = int64(size)
	} else if approx := derefInt(f.FileSizeApprox); approx > 0 {
		fc.Filesize = int64(approx)
	}
	return fc
}

// hasCodec reports whether a codec field names an actual stream; yt-dlp
// uses the literal "none" for absent tracks.
func hasCodec(codec *string) bool {
	return codec != nil && *codec != "" && *codec != "none"
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
