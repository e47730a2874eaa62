package model

// Event names pushed to UI subscribers.
const (
	EventQueueUpdate   = "queue_update"
	EventSyncProgress  = "sync_progress"
	EventOntologyAlert = "ontology_alert"
)

// QueueUpdate is the payload of a queue_update event and of getRelistQueue.
type QueueUpdate struct {
	Queue      []RelistQueueEntry `json:"queue"`
	Countdown  int                `json:"countdown"`
	Processing bool               `json:"processing"`
}

// Sync progress stages.
const (
	SyncStarting = "starting"
	SyncProgress = "progress"
	SyncDone     = "done"
)

// SyncProgressEvent reports reconciliation progress to the UI.
type SyncProgressEvent struct {
	Stage   string `json:"stage"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}
