// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notifications

// EventType identifies a pipeline lifecycle event.
type EventType string

const (
	EventFileProgressed    EventType = "FILE_PROGRESSED"
	EventFileCompleted     EventType = "FILE_COMPLETED"
	EventFileFailed        EventType = "FILE_FAILED"
	EventDuplicateDetected EventType = "DUPLICATE_DETECTED"
	EventBatchCompleted    EventType = "BATCH_COMPLETED"
)

// Event is one pipeline lifecycle notification.
type Event struct {
	Type        EventType `json:"type"`
	FileEntryID int64     `json:"fileEntryId,omitempty"`
	FilePath    string    `json:"filePath,omitempty"`
	ReleaseName string    `json:"releaseName,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	Tracker     string    `json:"tracker,omitempty"`
	BatchID     int64     `json:"batchId,omitempty"`
	// ErrorKind carries the failure classification for FILE_FAILED.
	ErrorKind string `json:"errorKind,omitempty"`
	Message   string `json:"message,omitempty"`
}
