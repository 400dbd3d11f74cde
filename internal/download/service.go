package download

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hyperfield/yt-channel-downloader/internal/config"
	"github.com/hyperfield/yt-channel-downloader/internal/format"
	"github.com/hyperfield/yt-channel-downloader/internal/media"
	"github.com/hyperfield/yt-channel-downloader/internal/model"
	"github.com/hyperfield/yt-channel-downloader/internal/platform"
	"github.com/hyperfield/yt-channel-downloader/internal/progress"
)

// Spec describes one download to enqueue. Index is the caller's stable row
// identity; DurationSec is optional metadata carried into the task.
type Spec struct {
	Index       int
	URL         string
	Title       string
	DurationSec int
}

type task struct {
	state     model.DownloadTask
	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// Service is the bounded-concurrency download scheduler. Tasks acquire a
// slot from a counting semaphore inside their own worker goroutine, so
// Submit never blocks the caller. Each started task emits exactly one
// terminal event; task-local failures never propagate out of their worker.
type Service struct {
	cfg      config.Settings
	pref     format.QualityPref
	resolver media.Resolver
	executor media.Executor
	tracker  *progress.Tracker
	sem      *semaphore.Weighted
	emit     model.Sink

	mu    sync.RWMutex
	tasks map[int]*task
	wg    sync.WaitGroup
}

// NewService creates a scheduler with the slot pool sized from the settings
func NewService(cfg config.Settings, resolver media.Resolver, executor media.Executor, tracker *progress.Tracker, sink model.Sink) *Service {
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	if sink == nil {
		sink = func(model.Event) {}
	}
	return &Service{
		cfg:      cfg,
		pref:     format.PrefFromSettings(cfg),
		resolver: resolver,
		executor: executor,
		tracker:  tracker,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentDownloads)),
		emit:     sink,
		tasks:    make(map[int]*task),
	}
}

// Tracker exposes the shared progress tracker (the estimation engine reads
// its rolling average speed)
func (s *Service) Tracker() *progress.Tracker {
	return s.tracker
}

// Submit enqueues a download task and returns its initial snapshot. The
// worker acquires a concurrency slot on its own; the caller is never blocked.
func (s *Service) Submit(spec Spec) (model.DownloadTask, error) {
	s.mu.Lock()
	if existing, ok := s.tasks[spec.Index]; ok && existing.state.Status.IsActive() {
		s.mu.Unlock()
		return model.DownloadTask{}, fmt.Errorf("task already active for index %d", spec.Index)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		state: model.DownloadTask{
			Index:          spec.Index,
			ID:             generateTaskID(),
			URL:            spec.URL,
			Title:          spec.Title,
			DurationSec:    spec.DurationSec,
			OutputTemplate: s.outputTemplate(spec.Title),
			Status:         model.TaskStatusQueued,
			StartedAt:      time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
	s.tasks[spec.Index] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(t)

	return t.state, nil
}

// Cancel requests cooperative cancellation of one task. Queued tasks are
// removed without ever starting and emit no terminal event; active tasks
// stop at their next checkpoint. Cancelling a finished task is a no-op.
func (s *Service) Cancel(index int) {
	s.mu.Lock()
	t, ok := s.tasks[index]
	if !ok || t.state.Status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	if t.state.Status != model.TaskStatusQueued {
		t.state.Status = model.TaskStatusCancelling
	}
	s.mu.Unlock()

	t.cancelled.Store(true)
	t.cancel()
}

// CancelAll cancels every non-terminal task without waiting for the workers
// to acknowledge
func (s *Service) CancelAll() {
	s.mu.RLock()
	indexes := make([]int, 0, len(s.tasks))
	for index := range s.tasks {
		indexes = append(indexes, index)
	}
	s.mu.RUnlock()

	for _, index := range indexes {
		s.Cancel(index)
	}
}

// Wait blocks until all submitted workers have exited
func (s *Service) Wait() {
	s.wg.Wait()
}

// Task returns a snapshot of one task
func (s *Service) Task(index int) (model.DownloadTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[index]
	if !ok {
		return model.DownloadTask{}, false
	}
	return t.state.Snapshot(), true
}

// Tasks returns snapshots of all known tasks
func (s *Service) Tasks() []model.DownloadTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.DownloadTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.state.Snapshot())
	}
	return out
}

// ActiveCount returns the number of tasks that have not reached a terminal
// state
func (s *Service) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, t := range s.tasks {
		if t.state.Status.IsActive() {
			count++
		}
	}
	return count
}

func (s *Service) run(t *task) {
	defer s.wg.Done()

	if err := s.sem.Acquire(t.ctx, 1); err != nil {
		// Cancelled while queued: the task never started, never held a
		// slot, and emits no terminal event.
		s.removeQueued(t.state.Index)
		return
	}
	// The slot is returned on every exit path from here on
	defer s.sem.Release(1)

	if t.cancelled.Load() {
		s.finishCancelled(t)
		return
	}

	s.setStatus(t, model.TaskStatusPreparing)
	chain := s.negotiate(t)

	if t.cancelled.Load() {
		s.finishCancelled(t)
		return
	}

	s.setStatus(t, model.TaskStatusDownloading)
	err := s.attempt(t, chain, s.pref.AudioOnly)

	if err != nil && media.IsRetryable(err) && !t.cancelled.Load() {
		log.Printf("download: preferred format unavailable for index %d (%v); retrying with generic best", t.state.Index, err)
		s.tracker.Reset(t.state.Index)
		s.resetProgress(t)
		// Relaxed retry: generic selector, post-processing dropped
		err = s.attempt(t, format.Relaxed(), false)
	}

	switch {
	case err == nil:
		s.finishCompleted(t)
	case errors.Is(err, media.ErrCancelled) || t.cancelled.Load():
		s.finishCancelled(t)
	default:
		s.finishFailed(t, err)
	}
}

// negotiate resolves the candidate list and builds the selector chain. A
// resolution failure degrades to the generic fallback chain; it never fails
// the task and never blocks the download.
func (s *Service) negotiate(t *task) format.SelectorChain {
	info, err := s.resolver.Resolve(t.ctx, t.state.URL)
	if err != nil || info == nil {
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("download: no format candidates for index %d (%v); using generic fallback", t.state.Index, err)
		}
		return format.Negotiate(nil, s.pref)
	}

	s.mu.Lock()
	if t.state.Title == "" && info.Title != "" {
		t.state.Title = info.Title
		t.state.OutputTemplate = s.outputTemplate(info.Title)
	}
	if t.state.DurationSec == 0 {
		t.state.DurationSec = info.DurationSec
	}
	s.mu.Unlock()

	return format.Negotiate(info.Formats, s.pref)
}

func (s *Service) attempt(t *task, chain format.SelectorChain, extractAudio bool) error {
	audioCodec := ""
	if extractAudio {
		audioCodec = s.cfg.PreferredAudioFormat
		if audioCodec == "" {
			audioCodec = "mp3"
		}
	}

	req := media.Request{
		URL:            t.state.URL,
		Format:         chain.String(),
		OutputTemplate: t.state.OutputTemplate,
		ExtractAudio:   extractAudio,
		AudioCodec:     audioCodec,
		Proxy:          s.cfg.ProxyURL(),
		OnProgress: func(bytesDone, bytesTotal int64, rate float64) error {
			// Cancellation checkpoint inside the progress hook
			if t.cancelled.Load() {
				return media.ErrCancelled
			}
			update, ok := s.tracker.Observe(t.state.Index, bytesDone, bytesTotal, rate)
			if !ok {
				return nil
			}
			s.mu.Lock()
			t.state.Percent = update.Percent
			t.state.SpeedBPS = update.SpeedBPS
			t.state.Speed = update.Speed
			t.state.LastEmit = time.Now()
			if bytesTotal > 0 {
				t.state.FileSize = bytesTotal
			}
			s.mu.Unlock()
			s.emit(model.ProgressEvent{
				Index:    t.state.Index,
				Percent:  update.Percent,
				Speed:    update.Speed,
				SpeedBPS: update.SpeedBPS,
			})
			return nil
		},
	}
	return s.executor.Download(t.ctx, req)
}

func (s *Service) finishCompleted(t *task) {
	s.mu.Lock()
	t.state.Status = model.TaskStatusCompleted
	t.state.Percent = 100
	t.state.FinishedAt = time.Now()
	s.mu.Unlock()

	s.tracker.Forget(t.state.Index)
	s.emit(model.CompletedEvent{Index: t.state.Index})
}

func (s *Service) finishCancelled(t *task) {
	percent := s.tracker.LastPercent(t.state.Index)

	s.mu.Lock()
	t.state.Status = model.TaskStatusCancelled
	t.state.Percent = percent
	t.state.FinishedAt = time.Now()
	s.mu.Unlock()

	s.tracker.Forget(t.state.Index)
	s.emit(model.CancelledEvent{Index: t.state.Index, Percent: percent})
}

func (s *Service) finishFailed(t *task, err error) {
	kind := media.KindOf(err)
	log.Printf("download: task %d (%s) failed: %v", t.state.Index, t.state.ID, err)

	s.mu.Lock()
	t.state.Status = model.TaskStatusFailed
	t.state.ErrKind = kind
	t.state.Reason = string(kind)
	t.state.FinishedAt = time.Now()
	s.mu.Unlock()

	s.tracker.Forget(t.state.Index)
	s.emit(model.FailedEvent{Index: t.state.Index, Kind: kind, Reason: string(kind)})
}

func (s *Service) removeQueued(index int) {
	s.mu.Lock()
	delete(s.tasks, index)
	s.mu.Unlock()
	s.tracker.Forget(index)
}

func (s *Service) setStatus(t *task, status model.TaskStatus) {
	s.mu.Lock()
	// A cancel request may have flipped the task to Cancelling already;
	// the worker will observe the flag at its next checkpoint.
	if t.state.Status != model.TaskStatusCancelling {
		t.state.Status = status
	}
	s.mu.Unlock()
}

func (s *Service) resetProgress(t *task) {
	s.mu.Lock()
	t.state.Percent = 0
	t.state.SpeedBPS = 0
	t.state.Speed = ""
	s.mu.Unlock()
}

func (s *Service) outputTemplate(title string) string {
	tmpl := s.cfg.FilenameTemplate
	if title != "" {
		tmpl = strings.Replace(tmpl, "%(title)s", platform.SanitizeFilename(title), 1)
	}
	if s.cfg.DownloadDirectory == "" {
		return tmpl
	}
	return filepath.Join(s.cfg.DownloadDirectory, tmpl)
}

// generateTaskID generates a unique correlation ID for logs
func generateTaskID() string {
	return "task-" + uuid.NewString()
}
