package model

import "time"

// Theme selects the UI color scheme.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Settings is the engine's flat configuration record. Exactly one instance
// exists per installation.
type Settings struct {
	Theme                    Theme `json:"theme"`
	MinimizeToTray           bool  `json:"minimize_to_tray"`
	StartMinimized           bool  `json:"start_minimized"`
	StartOnBoot              bool  `json:"start_on_boot"`
	CheckForUpdates          bool  `json:"check_for_updates"`
	NotifyEnabled            bool  `json:"notification_enabled"`
	NotifyOnBackupComplete   bool  `json:"notification_on_backup_complete"`
	NotifyOnWeatherAlert     bool  `json:"notification_on_weather_alert"`
	WeatherCheckIntervalMin  int   `json:"weather_check_interval_minutes"`
	BackupCheckIntervalMin   int   `json:"backup_check_interval_minutes"`
	MaxConcurrentUploads     int   `json:"max_concurrent_uploads"`
	ChunkSizeMB              int   `json:"chunk_size_mb"`
}

// DefaultSettings mirrors the engine's defaults for a fresh installation.
func DefaultSettings() Settings {
	return Settings{
		Theme:                   ThemeSystem,
		MinimizeToTray:          true,
		CheckForUpdates:         true,
		NotifyEnabled:           true,
		NotifyOnBackupComplete:  true,
		NotifyOnWeatherAlert:    true,
		WeatherCheckIntervalMin: 30,
		BackupCheckIntervalMin:  5,
		MaxConcurrentUploads:    2,
		ChunkSizeMB:             10,
	}
}

// Onboarding tracks first-run setup progress.
type Onboarding struct {
	Completed       bool       `json:"completed"`
	CurrentStep     int        `json:"current_step"`
	CloudConnected  bool       `json:"cloud_connected"`
	LocationSet     bool       `json:"location_set"`
	FirstSetCreated bool       `json:"first_backup_set_created"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Location is the optional singleton used as input to weather triggers.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
	State     string  `json:"state,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// AppState is the full engine-owned state, mirrored 1:1 by the shell. The
// shell never persists it; it is rehydrated via fetch-full-state.
type AppState struct {
	Settings         Settings    `json:"settings"`
	Onboarding       Onboarding  `json:"onboarding"`
	BackupSets       []BackupSet `json:"backup_sets"`
	Schedules        []Schedule  `json:"schedules"`
	Location         *Location   `json:"location,omitempty"`
	LastWeatherCheck *time.Time  `json:"last_weather_check,omitempty"`
	LastBackupCheck  *time.Time  `json:"last_backup_check,omitempty"`
	EngineVersion    string      `json:"engine_version"`
	FirstRun         bool        `json:"first_run"`
	UpdatedAt        time.Time   `json:"updated_at"`
}
