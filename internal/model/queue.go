package model

import "time"

// QueueStatus is the state of one relist queue entry.
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueMutating  QueueStatus = "mutating"
	QueueUploading QueueStatus = "uploading"
	QueueDone      QueueStatus = "done"
	QueueError     QueueStatus = "error"
)

// InFlight reports whether the entry is being worked on right now.
// At most one entry across the whole queue may be in-flight.
func (s QueueStatus) InFlight() bool {
	return s == QueueMutating || s == QueueUploading
}

// Active reports whether the entry still claims its item: pending and
// in-flight entries block item deletion, a terminal error entry does not.
func (s QueueStatus) Active() bool {
	return s == QueuePending || s.InFlight()
}

// RelistQueueEntry is one pending stealth resubmission.
type RelistQueueEntry struct {
	LocalID          int64       `json:"local_id"`
	Status           QueueStatus `json:"status"`
	Error            string      `json:"error,omitempty"`
	JitteredTitle    string      `json:"jittered_title"`
	MutatedThumbnail string      `json:"mutated_thumbnail,omitempty"`
	RelistCount      int         `json:"relist_count"`
	EnqueuedAt       time.Time   `json:"enqueued_at"`
}
