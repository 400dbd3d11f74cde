package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hyperfield/yt-channel-downloader/internal/config"
	"github.com/hyperfield/yt-channel-downloader/internal/media"
	"github.com/hyperfield/yt-channel-downloader/internal/model"
	"github.com/hyperfield/yt-channel-downloader/internal/platform"
)

const (
	// MaxRedirects caps redirect chains
	MaxRedirects = 10

	copyBufferSize = 32 * 1024

	// PartialSuffix marks in-flight files; a finished download is
	// renamed into place so completion probing never sees it.
	PartialSuffix = ".part"

	defaultExt = "bin"
)

// HTTPExecutor implements media.Executor with a ranged GET. An optional
// byte-rate limiter throttles the copy loop.
type HTTPExecutor struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPExecutor builds an executor from the proxy and rate-limit
// settings. A zero rate_limit_bps disables throttling.
func NewHTTPExecutor(cfg config.Settings) *HTTPExecutor {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if proxy := cfg.ProxyURL(); proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", MaxRedirects)
			}
			return nil
		},
	}

	var limiter *rate.Limiter
	if cfg.RateLimitBPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitBPS), copyBufferSize)
	}
	return &HTTPExecutor{client: client, limiter: limiter}
}

// Download fetches the request URL into the output path derived from
// the request template, reporting progress through the hook. The bytes
// land in a partial file first and are renamed on success.
func (e *HTTPExecutor) Download(ctx context.Context, req media.Request) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return media.NewError(model.ErrorKindDownload, err)
	}
	httpReq.Header.Set("Range", "bytes=0-")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return media.ErrCancelled
		}
		return media.NewError(model.ErrorKindNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
		return media.NewRetryable(fmt.Errorf("HTTP Error %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return media.NewError(model.ErrorKindNetwork, fmt.Errorf("server error %d", resp.StatusCode))
	default:
		return media.NewError(model.ErrorKindDownload, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	outPath := outputPath(req)
	if err := platform.CreateDirectoryIfNotExists(filepath.Dir(outPath)); err != nil {
		return media.NewError(model.ErrorKindDownload, err)
	}

	partial := outPath + PartialSuffix
	out, err := os.Create(partial)
	if err != nil {
		return media.NewError(model.ErrorKindDownload, err)
	}

	err = e.copyBody(ctx, out, resp.Body, resp.ContentLength, req.OnProgress)
	closeErr := out.Close()
	if err != nil {
		os.Remove(partial)
		return err
	}
	if closeErr != nil {
		os.Remove(partial)
		return media.NewError(model.ErrorKindDownload, closeErr)
	}
	if err := os.Rename(partial, outPath); err != nil {
		return media.NewError(model.ErrorKindDownload, err)
	}
	return nil
}

// copyBody streams the body through the counter, pacing on the limiter
// and checking the progress hook between buffers.
func (e *HTTPExecutor) copyBody(ctx context.Context, dst io.Writer, src io.Reader, total int64, onProgress media.ProgressFunc) error {
	counter := &writeCounter{total: total, started: time.Now(), onProgress: onProgress}
	buf := make([]byte, copyBufferSize)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if e.limiter != nil {
				if err := e.limiter.WaitN(ctx, n); err != nil {
					return media.ErrCancelled
				}
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return media.NewError(model.ErrorKindDownload, err)
			}
			if err := counter.advance(int64(n)); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return counter.finish()
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return media.ErrCancelled
			}
			return media.NewError(model.ErrorKindNetwork, readErr)
		}
	}
}

// writeCounter accumulates transferred bytes and forwards them to the
// progress hook; a non-nil hook return aborts the transfer.
type writeCounter struct {
	done       int64
	total      int64
	started    time.Time
	onProgress media.ProgressFunc
}

func (w *writeCounter) advance(n int64) error {
	w.done += n
	return w.report()
}

// finish pins the total to what actually arrived, covering servers
// that never sent a Content-Length.
func (w *writeCounter) finish() error {
	if w.total <= 0 {
		w.total = w.done
	}
	return w.report()
}

func (w *writeCounter) report() error {
	if w.onProgress == nil {
		return nil
	}
	elapsed := time.Since(w.started).Seconds()
	var bps float64
	if elapsed > 0 {
		bps = float64(w.done) / elapsed
	}
	return w.onProgress(w.done, w.total, bps)
}

// outputPath turns the yt-dlp style template into a concrete file path,
// substituting the extension from the URL itself.
func outputPath(req media.Request) string {
	ext := defaultExt
	base := req.URL
	if u, err := url.Parse(req.URL); err == nil {
		base = path.Base(u.Path)
		if e := strings.TrimPrefix(path.Ext(u.Path), "."); e != "" {
			ext = e
			base = strings.TrimSuffix(base, "."+e)
		}
	}
	out := strings.ReplaceAll(req.OutputTemplate, "%(ext)s", ext)
	return strings.ReplaceAll(out, "%(title)s", platform.SanitizeFilename(base))
}
