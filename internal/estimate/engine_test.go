package estimate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hyperfield/yt-channel-downloader/internal/config"
	"github.com/hyperfield/yt-channel-downloader/internal/model"
)

type fakeResolver struct {
	mu      sync.Mutex
	infos   map[string]*model.MediaInfo
	calls   map[string]int
	block   chan struct{} // when non-nil, Resolve waits for close
	entered chan struct{} // signalled once a call starts blocking
}

func (r *fakeResolver) Resolve(ctx context.Context, url string) (*model.MediaInfo, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[url]++
	block := r.block
	entered := r.entered
	info := r.infos[url]
	r.mu.Unlock()

	if block != nil {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if info == nil {
		return nil, errors.New("no such media")
	}
	return info, nil
}

func (r *fakeResolver) callCount(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[url]
}

type fakeSpeed struct{ bps float64 }

func (s fakeSpeed) AverageSpeed() float64 { return s.bps }

type resultLog struct {
	mu      sync.Mutex
	results []Result
	ch      chan Result
}

func newResultLog() *resultLog {
	return &resultLog{ch: make(chan Result, 16)}
}

func (l *resultLog) sink(r Result) {
	l.mu.Lock()
	l.results = append(l.results, r)
	l.mu.Unlock()
	l.ch <- r
}

func (l *resultLog) wait(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-l.ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no result delivered")
		return Result{}
	}
}

func (l *resultLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.results)
}

func audioOnlySettings() config.Settings {
	cfg := config.Default()
	cfg.AudioOnly = true
	cfg.PreferredAudioQuality = "320k"
	return cfg
}

func TestEstimate_LadderPerRow(t *testing.T) {
	resolver := &fakeResolver{infos: map[string]*model.MediaInfo{
		// Explicit filesize on the chosen format
		"https://example.com/a": {DurationSec: 100, Formats: []model.FormatCandidate{
			{ID: "f1", Height: 1080, HasVideo: true, HasAudio: true, Filesize: 5_000_000},
		}},
		// No filesize, bitrate known: 8000 kbps * 1000 / 8 * 10s = 10 MB
		"https://example.com/b": {DurationSec: 10, Formats: []model.FormatCandidate{
			{ID: "f2", Height: 1080, BitrateKbps: 8000, HasVideo: true, HasAudio: true},
		}},
		// Neither: falls back to the 1080p table guess over 10s = 10 MB
		"https://example.com/c": {DurationSec: 10, Formats: []model.FormatCandidate{
			{ID: "f3", Height: 1080, HasVideo: true, HasAudio: true},
		}},
	}}
	log := newResultLog()
	eng := NewEngine(resolver, config.Default(), nil, log.sink)

	eng.Start([]Row{
		{Index: 0, URL: "https://example.com/a"},
		{Index: 1, URL: "https://example.com/b"},
		{Index: 2, URL: "https://example.com/c"},
	})
	res := log.wait(t)

	want := map[int]int64{0: 5_000_000, 1: 10_000_000, 2: 10_000_000}
	for idx, size := range want {
		got := res.PerRow[idx]
		if got == nil || *got != size {
			t.Errorf("row %d = %v, want %d", idx, got, size)
		}
	}
	if res.HasUnknown {
		t.Error("HasUnknown = true for fully estimable rows")
	}
	if res.TotalBytes != 25_000_000 {
		t.Errorf("TotalBytes = %d, want 25000000", res.TotalBytes)
	}
}

func TestEstimate_UnknownRowsExcludedNotZeroed(t *testing.T) {
	resolver := &fakeResolver{infos: map[string]*model.MediaInfo{
		"https://example.com/known": {DurationSec: 100, Formats: []model.FormatCandidate{
			{ID: "f1", HasVideo: true, HasAudio: true, Filesize: 1_000_000},
		}},
		// Resolves but carries no duration and no sizes
		"https://example.com/nodata": {Formats: []model.FormatCandidate{
			{ID: "f2", HasVideo: true, HasAudio: true},
		}},
	}}
	log := newResultLog()
	eng := NewEngine(resolver, config.Default(), nil, log.sink)

	eng.Start([]Row{
		{Index: 0, URL: "https://example.com/known"},
		{Index: 1, URL: "https://example.com/nodata"},
		{Index: 2, URL: "https://example.com/missing"}, // resolver error
	})
	res := log.wait(t)

	if !res.HasUnknown {
		t.Error("HasUnknown = false with two unknown rows")
	}
	if res.TotalBytes != 1_000_000 {
		t.Errorf("TotalBytes = %d, unknown rows must not contribute", res.TotalBytes)
	}
	if res.PerRow[1] != nil || res.PerRow[2] != nil {
		t.Error("unknown rows must stay nil, not zero")
	}
	if res.Rows != 3 {
		t.Errorf("Rows = %d, want 3", res.Rows)
	}
}

func TestEstimate_VideoOnlyPickAddsAudio(t *testing.T) {
	resolver := &fakeResolver{infos: map[string]*model.MediaInfo{
		"https://example.com/v": {DurationSec: 100, Formats: []model.FormatCandidate{
			{ID: "video", Height: 1080, HasVideo: true, Filesize: 8_000_000},
			{ID: "audio", HasAudio: true, AudioBitrateKbps: 128},
		}},
	}}
	log := newResultLog()
	eng := NewEngine(resolver, config.Default(), nil, log.sink)

	eng.Start([]Row{{Index: 0, URL: "https://example.com/v"}})
	res := log.wait(t)

	// 8 MB video plus 128 kbps * 100 s = 1.6 MB audio
	want := int64(8_000_000 + 1_600_000)
	if got := res.PerRow[0]; got == nil || *got != want {
		t.Errorf("estimate = %v, want %d", got, want)
	}
}

func TestEstimate_RemainingUsesRowPercent(t *testing.T) {
	resolver := &fakeResolver{infos: map[string]*model.MediaInfo{
		"https://example.com/v": {DurationSec: 100, Formats: []model.FormatCandidate{
			{ID: "f", HasVideo: true, HasAudio: true, Filesize: 1_000_000},
		}},
	}}
	log := newResultLog()
	eng := NewEngine(resolver, config.Default(), fakeSpeed{bps: 1000}, log.sink)

	eng.Start([]Row{{Index: 0, URL: "https://example.com/v", Percent: 50}})
	res := log.wait(t)

	if res.TotalRemaining != 500_000 {
		t.Errorf("TotalRemaining = %d, want 500000", res.TotalRemaining)
	}
	// 500000 bytes at 1000 B/s is 500 seconds
	if res.ETA != "8:20" {
		t.Errorf("ETA = %q, want 8:20", res.ETA)
	}
}

func TestEstimate_ETAUnknownWithoutSpeedSamples(t *testing.T) {
	resolver := &fakeResolver{infos: map[string]*model.MediaInfo{
		"https://example.com/v": {DurationSec: 100, Formats: []model.FormatCandidate{
			{ID: "f", HasVideo: true, HasAudio: true, Filesize: 1_000_000},
		}},
	}}
	log := newResultLog()
	eng := NewEngine(resolver, config.Default(), fakeSpeed{bps: 0}, log.sink)

	eng.Start([]Row{{Index: 0, URL: "https://example.com/v"}})
	res := log.wait(t)

	if res.ETA != "—" {
		t.Errorf("ETA = %q, want the unknown marker", res.ETA)
	}
}

func TestEstimate_StaleGenerationDiscarded(t *testing.T) {
	block := make(chan struct{})
	resolver := &fakeResolver{
		block:   block,
		entered: make(chan struct{}, 1),
		infos: map[string]*model.MediaInfo{
			"https://example.com/v": {DurationSec: 10, Formats: []model.FormatCandidate{
				{ID: "f", HasVideo: true, HasAudio: true, Filesize: 1_000_000},
			}},
		},
	}
	log := newResultLog()
	eng := NewEngine(resolver, config.Default(), nil, log.sink)

	g1 := eng.Start([]Row{{Index: 0, URL: "https://example.com/v"}})
	<-resolver.entered

	// Second launch while the first worker is stuck resolving
	resolver.mu.Lock()
	resolver.block = nil
	resolver.mu.Unlock()
	g2 := eng.Start([]Row{{Index: 0, URL: "https://example.com/v2"}})
	if g2 <= g1 {
		t.Fatalf("generations not monotonic: %d then %d", g1, g2)
	}

	res := log.wait(t)
	if res.Generation != g2 {
		t.Fatalf("delivered generation %d, want %d", res.Generation, g2)
	}

	// Release the orphaned worker; its result must be discarded
	close(block)
	time.Sleep(50 * time.Millisecond)
	if n := log.count(); n != 1 {
		t.Errorf("results delivered = %d, stale generation leaked through", n)
	}
	if eng.InProgress() {
		t.Error("InProgress = true after delivery")
	}
}

func TestEstimate_CancelResetsImmediately(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	resolver := &fakeResolver{block: block}
	log := newResultLog()
	eng := NewEngine(resolver, config.Default(), nil, log.sink)

	g1 := eng.Start([]Row{{Index: 0, URL: "https://example.com/v"}})
	if !eng.InProgress() {
		t.Fatal("InProgress = false right after Start")
	}

	eng.Cancel()
	res := log.wait(t)
	if !res.Cancelled {
		t.Error("Cancelled = false on the reset result")
	}
	if res.Generation <= g1 {
		t.Errorf("cancel did not advance the generation: %d", res.Generation)
	}
	if eng.InProgress() {
		t.Error("InProgress = true after Cancel")
	}

	// Cancel with nothing running is a no-op
	eng.Cancel()
	if n := log.count(); n != 1 {
		t.Errorf("results = %d after idle Cancel, want 1", n)
	}
}

func TestEstimate_WatchdogOrphansWedgedWorker(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	resolver := &fakeResolver{block: block}
	log := newResultLog()
	eng := NewEngine(resolver, config.Default(), nil, log.sink)
	eng.watchdogMin = 20 * time.Millisecond
	eng.watchdogPerRow = 0

	gen := eng.Start([]Row{{Index: 0, URL: "https://example.com/v"}})

	res := log.wait(t)
	if !res.Cancelled {
		t.Error("watchdog result not flagged cancelled")
	}
	if res.Generation <= gen {
		t.Errorf("watchdog did not advance the generation: %d", res.Generation)
	}
	if eng.InProgress() {
		t.Error("InProgress = true after watchdog fired")
	}

	// The engine accepts a fresh batch after recovery
	resolver.mu.Lock()
	resolver.block = nil
	resolver.infos = map[string]*model.MediaInfo{
		"https://example.com/v": {DurationSec: 10, Formats: []model.FormatCandidate{
			{ID: "f", HasVideo: true, HasAudio: true, Filesize: 1_000},
		}},
	}
	resolver.mu.Unlock()
	eng.watchdogMin = MinWatchdogTimeout

	eng.Start([]Row{{Index: 0, URL: "https://example.com/v"}})
	res = log.wait(t)
	if res.Cancelled || res.TotalBytes != 1_000 {
		t.Errorf("fresh batch after watchdog = %+v", res)
	}
}

func TestEstimate_CachesAndInvalidation(t *testing.T) {
	resolver := &fakeResolver{infos: map[string]*model.MediaInfo{
		"https://example.com/v": {DurationSec: 10, Formats: []model.FormatCandidate{
			{ID: "f", HasVideo: true, HasAudio: true, Filesize: 1_000},
		}},
	}}
	log := newResultLog()
	cfg := config.Default()
	eng := NewEngine(resolver, cfg, nil, log.sink)

	rows := []Row{{Index: 0, URL: "https://example.com/v"}}
	eng.Start(rows)
	log.wait(t)
	eng.Start(rows)
	log.wait(t)

	if n := resolver.callCount("https://example.com/v"); n != 1 {
		t.Errorf("resolver calls = %d, cache not used", n)
	}

	// A concurrency change keeps the signature and the caches
	cfg.MaxConcurrentDownloads = 9
	eng.SettingsChanged(cfg)
	eng.Start(rows)
	log.wait(t)
	if n := resolver.callCount("https://example.com/v"); n != 1 {
		t.Errorf("resolver calls = %d after non-format change", n)
	}

	// A format-affecting change drops both caches wholesale
	eng.SettingsChanged(audioOnlySettings())
	eng.Start(rows)
	log.wait(t)
	if n := resolver.callCount("https://example.com/v"); n != 2 {
		t.Errorf("resolver calls = %d, caches survived a signature change", n)
	}
}
