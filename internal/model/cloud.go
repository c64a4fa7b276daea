package model

import "time"

// RemoteFile describes a file stored with the cloud provider.
type RemoteFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ManifestEntry is one file recorded in a backup manifest.
type ManifestEntry struct {
	Path      string    `json:"path"`
	SizeBytes uint64    `json:"size_bytes"`
	Hash      string    `json:"hash"`
	ModTime   time.Time `json:"mod_time"`
}

// Manifest summarizes the contents of one archived backup run.
type Manifest struct {
	ID            string          `json:"id"`
	BackupSetID   string          `json:"backup_set_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Files         []ManifestEntry `json:"files"`
	TotalFiles    uint64          `json:"total_files"`
	TotalBytes    uint64          `json:"total_bytes"`
	RetentionDays *int            `json:"retention_days,omitempty"`
}

// CloudBackupBundle pairs a manifest with its two remote files. Bundles are
// read-only: the shell fetches, displays, and deletes them as a unit but
// never mutates one.
type CloudBackupBundle struct {
	Manifest     Manifest   `json:"manifest"`
	ManifestFile RemoteFile `json:"manifest_file"`
	ArchiveFile  RemoteFile `json:"archive_file"`
}

// RunReport is the result payload of a run-backup command.
type RunReport struct {
	RunID           string    `json:"run_id"`
	BackupSetID     string    `json:"backup_set_id"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	TotalFiles      uint64    `json:"total_files"`
	TotalBytes      uint64    `json:"total_bytes"`
	CompressedBytes uint64    `json:"compressed_bytes"`
	ArchivePath     string    `json:"archive_path,omitempty"`
}

// NoChanges reports whether an incremental run found nothing to back up.
func (r RunReport) NoChanges() bool {
	return r.TotalFiles == 0 && r.TotalBytes == 0
}

// FolderStats is the result of a get-folder-stats command.
type FolderStats struct {
	FileCount uint64 `json:"file_count"`
	TotalSize uint64 `json:"total_size"`
}

// CloudQuota reports used and total bytes on the cloud provider.
type CloudQuota struct {
	UsedBytes  uint64 `json:"used_bytes"`
	TotalBytes uint64 `json:"total_bytes"`
}
