package media

import (
	"context"

	"github.com/hyperfield/yt-channel-downloader/internal/model"
)

// Resolver determines the available formats and metadata for a URL. The
// implementation owns its own network timeouts; callers bound the call with
// the context. Failures are reported as *Error with KindResolution.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*model.MediaInfo, error)
}

// ProgressFunc receives raw transfer progress. bytesTotal is zero when the
// total is unknown; rate is bytes/sec, zero when unknown. Returning a non-nil
// error obliges the executor to abort before the next hook invocation; this
// is the cooperative cancellation checkpoint.
type ProgressFunc func(bytesDone, bytesTotal int64, rate float64) error

// Request describes one download attempt
type Request struct {
	URL            string
	Format         string // selector chain in first-match-wins syntax
	OutputTemplate string
	ExtractAudio   bool
	AudioCodec     string // post-processing codec for audio extraction
	Proxy          string
	OnProgress     ProgressFunc
}

// Executor performs a single download attempt. It must support interruption
// between progress-hook invocations and classify its failures as *Error.
type Executor interface {
	Download(ctx context.Context, req Request) error
}
