package model

// OperationStatus is the state of an in-flight backup operation as reported
// by the engine's progress events.
type OperationStatus string

const (
	OpIdle        OperationStatus = "idle"
	OpScanning    OperationStatus = "scanning"
	OpCompressing OperationStatus = "compressing"
	OpUploading   OperationStatus = "uploading"
	OpCompleted   OperationStatus = "completed"
	OpFailed      OperationStatus = "failed"
	OpCancelled   OperationStatus = "cancelled"
)

// Terminal reports whether no further transition occurs for this operation.
func (s OperationStatus) Terminal() bool {
	switch s {
	case OpCompleted, OpFailed, OpCancelled:
		return true
	default:
		return false
	}
}

// Trigger identifies what initiated a backup run.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerUnknown  Trigger = "unknown"
)

// OperationProgress is one progress event for the current backup operation.
// Events carry no sequence number, so delivery order is taken as-is.
type OperationProgress struct {
	BackupSetID    string          `json:"backup_set_id"`
	Status         OperationStatus `json:"status"`
	TotalFiles     uint64          `json:"total_files"`
	ProcessedFiles uint64          `json:"processed_files"`
	TotalBytes     uint64          `json:"total_bytes"`
	ProcessedBytes uint64          `json:"processed_bytes"`
	CurrentFile    string          `json:"current_file,omitempty"`
	Error          string          `json:"error,omitempty"`
	Trigger        Trigger         `json:"trigger,omitempty"`
}
