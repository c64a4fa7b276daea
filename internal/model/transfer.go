package model

import "time"

// TransferStatus is the lifecycle state of a download.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferActive    TransferStatus = "active"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// Terminal reports whether the transfer has finished, successfully or not.
func (s TransferStatus) Terminal() bool {
	return s == TransferCompleted || s == TransferFailed
}

// TransferItem is one concurrent download tracked by the shell. Progress
// events identify transfers by target path, not by a server-issued id, so the
// path must be unique among active transfers.
type TransferItem struct {
	ID         string         `json:"id"`
	FileName   string         `json:"file_name"`
	TargetPath string         `json:"target_path"`
	Source     string         `json:"source"`
	Downloaded uint64         `json:"downloaded"`
	Total      uint64         `json:"total"`
	Status     TransferStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TransferProgress is the payload of a download:progress event. Field names
// match the engine's wire format.
type TransferProgress struct {
	TargetPath string `json:"targetPath"`
	Downloaded uint64 `json:"downloaded"`
	Total      uint64 `json:"total"`
	FileName   string `json:"fileName"`
}
