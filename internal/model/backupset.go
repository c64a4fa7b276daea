package model

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// BackupType classifies where a set's archives end up. It is derived from
// CloudUpload and LocalDestination and never stored.
type BackupType string

const (
	BackupTypeLocal BackupType = "local"
	BackupTypeCloud BackupType = "cloud"
	BackupTypeBoth  BackupType = "both"
)

// BackupSet is a named collection of source paths plus retention and upload
// configuration. The engine owns the record; the shell only mirrors it.
type BackupSet struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	Sources           []string   `json:"sources"`
	ExcludePatterns   []string   `json:"exclude_patterns"`
	Enabled           bool       `json:"enabled"`
	CompressionLevel  int        `json:"compression_level"`
	Incremental       bool       `json:"incremental"`
	RetentionDays     *int       `json:"retention_days,omitempty"`
	MaxVersions       *int       `json:"max_versions,omitempty"`
	CloudUpload       bool       `json:"cloud_upload"`
	LocalDestination  *string    `json:"local_destination,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastBackup        *time.Time `json:"last_backup,omitempty"`
	TotalBackups      uint64     `json:"total_backups"`
	TotalSizeBackedUp uint64     `json:"total_size_backed_up"`
}

var defaultExcludePatterns = []string{
	"node_modules",
	".git",
	"__pycache__",
	"target",
	".DS_Store",
	"Thumbs.db",
	"*.tmp",
	"*.temp",
	"*.log",
}

// NewBackupSet creates a set with the standard defaults.
func NewBackupSet(name string) BackupSet {
	now := time.Now().UTC()
	retention := 30
	versions := 10
	return BackupSet{
		ID:               uuid.NewString(),
		Name:             name,
		Sources:          []string{},
		ExcludePatterns:  append([]string(nil), defaultExcludePatterns...),
		Enabled:          true,
		CompressionLevel: 6,
		Incremental:      true,
		RetentionDays:    &retention,
		MaxVersions:      &versions,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Type derives the three-way classification from the upload flag and local
// destination.
func (s BackupSet) Type() BackupType {
	switch {
	case s.CloudUpload && s.LocalDestination != nil:
		return BackupTypeBoth
	case s.CloudUpload:
		return BackupTypeCloud
	default:
		return BackupTypeLocal
	}
}

// Preset identifies a template for common backup scenarios.
type Preset string

const (
	PresetDocuments Preset = "documents"
	PresetPhotos    Preset = "photos"
	PresetCode      Preset = "code"
	PresetDesktop   Preset = "desktop"
	PresetCustom    Preset = "custom"
)

// NewPresetSet creates a backup set from a preset template rooted at the
// user's home directory.
func NewPresetSet(preset Preset, homeDir string) BackupSet {
	switch preset {
	case PresetDocuments:
		set := NewBackupSet("Documents")
		set.Description = "Personal documents and files"
		set.Sources = []string{filepath.Join(homeDir, "Documents")}
		set.ExcludePatterns = append(set.ExcludePatterns, "~$*")
		return set
	case PresetPhotos:
		set := NewBackupSet("Photos")
		set.Description = "Photos and images"
		set.Sources = []string{filepath.Join(homeDir, "Pictures")}
		// Photos are already compressed
		set.CompressionLevel = 1
		return set
	case PresetCode:
		set := NewBackupSet("Code Projects")
		set.Description = "Source code and development projects"
		set.ExcludePatterns = append(set.ExcludePatterns,
			"dist", "build", ".next", "*.pyc")
		return set
	case PresetDesktop:
		set := NewBackupSet("Desktop")
		set.Description = "Desktop files and shortcuts"
		set.Sources = []string{filepath.Join(homeDir, "Desktop")}
		return set
	default:
		return NewBackupSet("Custom Backup")
	}
}
