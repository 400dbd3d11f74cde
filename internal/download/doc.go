package download

// Package download implements the bounded-concurrency task scheduler. It
// manages task lifecycle, the concurrency slot pool, cooperative
// cancellation, the single relaxed-selector retry, and terminal event
// reporting. Media resolution and transfer execution are delegated to the
// interfaces in internal/media.
