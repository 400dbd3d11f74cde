package estimate

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperfield/yt-channel-downloader/internal/config"
	"github.com/hyperfield/yt-channel-downloader/internal/format"
	"github.com/hyperfield/yt-channel-downloader/internal/media"
	"github.com/hyperfield/yt-channel-downloader/internal/model"
	"github.com/hyperfield/yt-channel-downloader/internal/progress"
)

// Watchdog bounds
const (
	MinWatchdogTimeout = 5 * time.Second
	PerRowWatchdogCost = 2 * time.Second
)

// Bitrate guesses in kbps for formats that report neither a filesize
// nor a bitrate, keyed by video height.
var videoBitrateTable = map[int]float64{
	2160: 20000,
	1440: 12000,
	1080: 8000,
	720:  5000,
	480:  2500,
	360:  1200,
	240:  700,
	144:  400,
}

const (
	bestVideoBitrateKbps    = 8000
	defaultVideoBitrateKbps = 4000
	defaultAudioBitrateKbps = 192
)

// Row is one estimation input: a stable row index, the media URL and
// whatever is already known about it.
type Row struct {
	Index       int
	URL         string
	DurationSec float64
	Percent     float64
}

// Result is one aggregated estimation outcome. PerRow values are nil
// for rows whose size could not be determined; such rows are excluded
// from the totals and flagged through HasUnknown rather than counted
// as zero.
type Result struct {
	Generation     int64
	TotalBytes     int64
	TotalRemaining int64
	HasUnknown     bool
	PerRow         map[int]*int64
	Rows           int
	Cancelled      bool
	ETA            string
}

// SpeedSource supplies the observed mean transfer speed used to turn a
// remaining-bytes figure into an ETA. *progress.Tracker implements it.
type SpeedSource interface {
	AverageSpeed() float64
}

// Engine runs size estimation in a single background worker per batch.
// Results are tagged with the generation current at launch; anything
// that arrives after the generation moved on is discarded, so neither
// Cancel nor the watchdog ever waits for the worker.
type Engine struct {
	resolver media.Resolver
	speed    SpeedSource
	sink     func(Result)

	generation atomic.Int64
	inProgress atomic.Bool

	mu        sync.Mutex
	cfg       config.Settings
	signature string
	infoCache map[string]*model.MediaInfo
	sizeCache map[string]*int64

	// watchdog knobs, overridable in tests
	watchdogMin    time.Duration
	watchdogPerRow time.Duration
}

// NewEngine builds an Engine. sink may be nil when the caller only
// polls; speed may be nil when no downloads are running yet.
func NewEngine(resolver media.Resolver, cfg config.Settings, speed SpeedSource, sink func(Result)) *Engine {
	if sink == nil {
		sink = func(Result) {}
	}
	return &Engine{
		resolver:       resolver,
		speed:          speed,
		sink:           sink,
		cfg:            cfg,
		signature:      cfg.Signature(),
		infoCache:      make(map[string]*model.MediaInfo),
		sizeCache:      make(map[string]*int64),
		watchdogMin:    MinWatchdogTimeout,
		watchdogPerRow: PerRowWatchdogCost,
	}
}

// SettingsChanged installs new settings. When any format-affecting key
// changed, both caches are replaced wholesale: entries keyed under the
// old signature can never match again.
func (e *Engine) SettingsChanged(cfg config.Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sig := cfg.Signature()
	if sig != e.signature {
		e.infoCache = make(map[string]*model.MediaInfo)
		e.sizeCache = make(map[string]*int64)
	}
	e.cfg = cfg
	e.signature = sig
}

// InProgress reports whether a batch launched by Start has neither
// delivered nor been cancelled or timed out.
func (e *Engine) InProgress() bool {
	return e.inProgress.Load()
}

// Cancel stops the current batch. The generation moves immediately, so
// a worker still running keeps going but its result is discarded on
// arrival; a cancelled Result is delivered right away to reset any
// indicators.
func (e *Engine) Cancel() {
	e.mu.Lock()
	if !e.inProgress.Load() {
		e.mu.Unlock()
		return
	}
	gen := e.generation.Add(1)
	e.inProgress.Store(false)
	e.mu.Unlock()
	e.sink(Result{Generation: gen, Cancelled: true})
}

// Start launches estimation for rows and returns the generation the
// batch runs under. A batch already in flight is orphaned by the
// generation bump, not joined.
func (e *Engine) Start(rows []Row) int64 {
	gen := e.generation.Add(1)
	e.inProgress.Store(true)

	batch := make([]Row, len(rows))
	copy(batch, rows)

	go e.runBatch(gen, batch)
	go e.watchdog(gen, len(batch))

	return gen
}

// watchdog recovers from a wedged resolver: once the deadline passes
// with the batch still current, the generation is bumped so the worker
// is orphaned and the in-progress indicator clears.
func (e *Engine) watchdog(gen int64, rows int) {
	timeout := e.watchdogMin
	if scaled := time.Duration(rows) * e.watchdogPerRow; scaled > timeout {
		timeout = scaled
	}
	time.Sleep(timeout)

	e.mu.Lock()
	if e.generation.Load() != gen || !e.inProgress.Load() {
		e.mu.Unlock()
		return
	}
	next := e.generation.Add(1)
	e.inProgress.Store(false)
	e.mu.Unlock()

	log.Printf("estimate: watchdog fired after %v, abandoning generation %d", timeout, gen)
	e.sink(Result{Generation: next, Cancelled: true})
}

func (e *Engine) runBatch(gen int64, rows []Row) {
	res := Result{
		Generation: gen,
		PerRow:     make(map[int]*int64, len(rows)),
		Rows:       len(rows),
	}

	for _, row := range rows {
		// A moved generation means cancel, restart or watchdog; the
		// rest of the batch would be thrown away anyway.
		if e.generation.Load() != gen {
			return
		}
		est := e.estimateRow(row)
		res.PerRow[row.Index] = est
		if est == nil {
			res.HasUnknown = true
			continue
		}
		res.TotalBytes += *est
		res.TotalRemaining += remainingOf(*est, row.Percent)
	}

	res.ETA = e.etaFor(res.TotalRemaining)
	e.apply(res)
}

// apply delivers a finished result unless its generation went stale
// while the worker ran.
func (e *Engine) apply(res Result) {
	e.mu.Lock()
	if e.generation.Load() != res.Generation {
		e.mu.Unlock()
		log.Printf("estimate: discarding stale result for generation %d", res.Generation)
		return
	}
	e.inProgress.Store(false)
	e.mu.Unlock()
	e.sink(res)
}

// estimateRow walks the ladder for one row: size cache, explicit
// filesize of the negotiated format, bitrate×duration, bitrate-table
// guess. A row with no usable signal stays unknown (nil), never zero.
func (e *Engine) estimateRow(row Row) *int64 {
	e.mu.Lock()
	cfg := e.cfg
	key := row.URL + "|" + e.signature
	if cached, ok := e.sizeCache[key]; ok {
		e.mu.Unlock()
		return cached
	}
	info, cachedInfo := e.infoCache[row.URL]
	e.mu.Unlock()

	if !cachedInfo {
		ctx, cancel := context.WithTimeout(context.Background(), MinWatchdogTimeout)
		resolved, err := e.resolver.Resolve(ctx, row.URL)
		cancel()
		if err != nil {
			log.Printf("estimate: resolve %s: %v", row.URL, err)
			resolved = nil
		}
		info = resolved
		e.mu.Lock()
		e.infoCache[row.URL] = info
		e.mu.Unlock()
	}

	est := e.estimateFromInfo(info, row, cfg)

	e.mu.Lock()
	e.sizeCache[key] = est
	e.mu.Unlock()
	return est
}

func (e *Engine) estimateFromInfo(info *model.MediaInfo, row Row, cfg config.Settings) *int64 {
	duration := row.DurationSec
	var candidates []model.FormatCandidate
	if info != nil {
		candidates = info.Formats
		if info.DurationSec > 0 {
			duration = float64(info.DurationSec)
		}
	}

	pref := format.PrefFromSettings(cfg)
	if pref.AudioOnly {
		return estimateAudio(candidates, pref, duration)
	}
	return estimateVideo(candidates, pref, duration)
}

func estimateAudio(candidates []model.FormatCandidate, pref format.QualityPref, duration float64) *int64 {
	chosen := format.SelectAudioFormat(candidates, pref.AudioExt, pref.AudioQuality)
	if chosen != nil && chosen.Filesize > 0 {
		return sizePtr(chosen.Filesize)
	}
	kbps := audioGuessKbps(pref.AudioQuality)
	if chosen != nil {
		if br := chosen.AudioBitrateKbps; br > 0 {
			kbps = br
		} else if chosen.BitrateKbps > 0 {
			kbps = chosen.BitrateKbps
		}
	}
	return sizeFromBitrate(kbps, duration)
}

func estimateVideo(candidates []model.FormatCandidate, pref format.QualityPref, duration float64) *int64 {
	chosen := format.SelectVideoFormat(candidates, pref)

	var est *int64
	switch {
	case chosen != nil && chosen.Filesize > 0:
		est = sizePtr(chosen.Filesize)
	case chosen != nil && chosen.BitrateKbps > 0:
		est = sizeFromBitrate(chosen.BitrateKbps, duration)
	default:
		est = sizeFromBitrate(videoGuessKbps(pref, chosen), duration)
	}
	if est == nil {
		return nil
	}

	// A video-only pick still needs an audio stream on top.
	if chosen != nil && !chosen.HasAudio {
		if audio := estimateAudio(candidates, format.QualityPref{AudioQuality: config.QualityBest}, duration); audio != nil {
			total := *est + *audio
			return &total
		}
	}
	return est
}

// videoGuessKbps picks a table bitrate from the chosen format's height
// when known, otherwise from the configured quality label.
func videoGuessKbps(pref format.QualityPref, chosen *model.FormatCandidate) float64 {
	if chosen != nil && chosen.Height > 0 {
		if kbps, ok := videoBitrateTable[chosen.Height]; ok {
			return kbps
		}
	}
	if pref.VideoQuality == config.QualityBest {
		return bestVideoBitrateKbps
	}
	if target := format.ParseTargetHeight(pref.VideoQuality); target > 0 {
		if kbps, ok := videoBitrateTable[target]; ok {
			return kbps
		}
	}
	return defaultVideoBitrateKbps
}

func audioGuessKbps(quality string) float64 {
	if kbps := format.ParseBitrateKbps(quality); kbps > 0 {
		return float64(kbps)
	}
	return defaultAudioBitrateKbps
}

func sizeFromBitrate(kbps, durationSec float64) *int64 {
	if kbps <= 0 || durationSec <= 0 {
		return nil
	}
	return sizePtr(int64(kbps * 1000 / 8 * durationSec))
}

func sizePtr(v int64) *int64 {
	return &v
}

func remainingOf(estimate int64, percent float64) int64 {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return int64(float64(estimate) * (1 - percent/100))
}

func (e *Engine) etaFor(remaining int64) string {
	if remaining <= 0 || e.speed == nil {
		return progress.UnknownValue
	}
	speed := e.speed.AverageSpeed()
	if speed <= 0 {
		return progress.UnknownValue
	}
	return progress.FormatETA(float64(remaining) / speed)
}
