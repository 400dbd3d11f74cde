package model

// TaskStatus represents the lifecycle state of a download task
type TaskStatus string

const (
	// TaskStatusQueued means the task is registered but has not acquired a slot
	TaskStatusQueued TaskStatus = "Queued"

	// TaskStatusPreparing means the task holds a slot and is negotiating formats
	TaskStatusPreparing TaskStatus = "Preparing"

	// TaskStatusDownloading means the transfer is in progress
	TaskStatusDownloading TaskStatus = "Downloading"

	// TaskStatusCancelling means a cancel was requested and the worker has not
	// yet observed it at a checkpoint
	TaskStatusCancelling TaskStatus = "Cancelling"

	// TaskStatusCompleted means the task finished successfully
	TaskStatusCompleted TaskStatus = "Completed"

	// TaskStatusCancelled means the task was stopped by the user
	TaskStatusCancelled TaskStatus = "Cancelled"

	// TaskStatusFailed means the task failed with a classified error
	TaskStatusFailed TaskStatus = "Failed"
)

// String returns the string representation of TaskStatus
func (ts TaskStatus) String() string {
	return string(ts)
}

// IsActive returns true if the task is waiting for, or holding, a concurrency slot
func (ts TaskStatus) IsActive() bool {
	return ts == TaskStatusQueued || ts == TaskStatusPreparing ||
		ts == TaskStatusDownloading || ts == TaskStatusCancelling
}

// IsTerminal returns true if the task reached a final state
func (ts TaskStatus) IsTerminal() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusCancelled || ts == TaskStatusFailed
}
