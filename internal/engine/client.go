// Package engine is the typed command gateway to the out-of-process backup
// engine. Every command is a POST of a JSON argument object; every response
// is a tagged envelope. Commands are never retried and carry no timeout of
// their own: a hung engine call blocks until the context is cancelled.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/vigil-app/vigil/internal/model"
)

// CommandError is a failure reported by the engine itself, as opposed to a
// transport failure reaching it.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("engine command %s: %s", e.Command, e.Message)
}

// envelope is the wire shape of every command response.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
}

// Client issues commands against a running engine.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a gateway client for the engine at baseURL
// (e.g. http://127.0.0.1:7317).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No Timeout: command duration is unbounded (a full backup can run
		// for hours). Cancellation happens via the request context.
		httpClient: &http.Client{},
	}
}

func (c *Client) call(ctx context.Context, command string, args, out any) error {
	body := []byte("{}")
	if args != nil {
		var err error
		body, err = json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshal %s args: %w", command, err)
		}
	}

	url := c.baseURL + "/v1/command/" + command
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", command, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s: engine returned %d", command, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response: %w", command, err)
	}

	if !env.Success {
		msg := "unknown error"
		if env.Error != nil && *env.Error != "" {
			msg = *env.Error
		}
		return &CommandError{Command: command, Message: msg}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", command, err)
		}
	}
	return nil
}

// FetchState retrieves the engine's full persisted state.
func (c *Client) FetchState(ctx context.Context) (model.AppState, error) {
	var state model.AppState
	err := c.call(ctx, "get_app_state", nil, &state)
	return state, err
}

// UpdateSettings replaces the settings singleton.
func (c *Client) UpdateSettings(ctx context.Context, settings model.Settings) error {
	return c.call(ctx, "update_settings", map[string]any{"settings": settings}, nil)
}

// UpdateOnboarding replaces the onboarding record.
func (c *Client) UpdateOnboarding(ctx context.Context, ob model.Onboarding) error {
	return c.call(ctx, "update_onboarding", map[string]any{"onboarding": ob}, nil)
}

// CompleteOnboarding marks first-run setup as finished.
func (c *Client) CompleteOnboarding(ctx context.Context) error {
	return c.call(ctx, "complete_onboarding", nil, nil)
}

// ListBackupSets fetches all backup sets.
func (c *Client) ListBackupSets(ctx context.Context) ([]model.BackupSet, error) {
	var sets []model.BackupSet
	err := c.call(ctx, "get_backup_sets", nil, &sets)
	return sets, err
}

// CreateBackupSet registers the given set with the engine. The engine echoes
// the stored record back.
func (c *Client) CreateBackupSet(ctx context.Context, set model.BackupSet) (model.BackupSet, error) {
	var created model.BackupSet
	err := c.call(ctx, "create_backup_set", map[string]any{"set": set}, &created)
	return created, err
}

// CreateBackupSetFromPreset builds a set from one of the built-in presets and
// registers it with the engine.
func (c *Client) CreateBackupSetFromPreset(ctx context.Context, preset model.Preset, homeDir string) (model.BackupSet, error) {
	return c.CreateBackupSet(ctx, model.NewPresetSet(preset, homeDir))
}

// UpdateBackupSet replaces an existing set record.
func (c *Client) UpdateBackupSet(ctx context.Context, set model.BackupSet) error {
	return c.call(ctx, "update_backup_set", map[string]any{"set": set}, nil)
}

// DeleteBackupSet removes a set by id.
func (c *Client) DeleteBackupSet(ctx context.Context, id string) error {
	return c.call(ctx, "delete_backup_set", map[string]any{"id": id}, nil)
}

// ListSchedules fetches all schedules.
func (c *Client) ListSchedules(ctx context.Context) ([]model.Schedule, error) {
	var schedules []model.Schedule
	err := c.call(ctx, "get_schedules", nil, &schedules)
	return schedules, err
}

// CreateSchedule registers a schedule; the engine computes NextRun and
// echoes the stored record back.
func (c *Client) CreateSchedule(ctx context.Context, sched model.Schedule) (model.Schedule, error) {
	var created model.Schedule
	err := c.call(ctx, "create_schedule", map[string]any{"schedule": sched}, &created)
	return created, err
}

// UpdateSchedule replaces an existing schedule record.
func (c *Client) UpdateSchedule(ctx context.Context, sched model.Schedule) error {
	return c.call(ctx, "update_schedule", map[string]any{"schedule": sched}, nil)
}

// DeleteSchedule removes a schedule by id.
func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	return c.call(ctx, "delete_schedule", map[string]any{"id": id}, nil)
}

// SetWeatherTriggers replaces the alert types a schedule triggers on.
func (c *Client) SetWeatherTriggers(ctx context.Context, scheduleID string, alertTypes []string) error {
	args := map[string]any{"schedule_id": scheduleID, "alert_types": alertTypes}
	return c.call(ctx, "set_weather_triggers", args, nil)
}

// RunBackup executes a backup of the given set and blocks until it finishes.
// Progress arrives separately on the backup:progress event channel.
func (c *Client) RunBackup(ctx context.Context, setID string, incremental bool) (model.RunReport, error) {
	args := map[string]any{"backup_set_id": setID, "incremental": incremental}
	var report model.RunReport
	err := c.call(ctx, "run_backup", args, &report)
	return report, err
}

// ListCloudBundles fetches manifest/archive pairs stored with the cloud
// provider.
func (c *Client) ListCloudBundles(ctx context.Context) ([]model.CloudBackupBundle, error) {
	var bundles []model.CloudBackupBundle
	err := c.call(ctx, "list_cloud_bundles", nil, &bundles)
	return bundles, err
}

// DownloadCloudFile downloads a remote file to targetPath, blocking until the
// download finishes. Progress arrives on the download:progress channel keyed
// by targetPath.
func (c *Client) DownloadCloudFile(ctx context.Context, fileID, targetPath string) error {
	args := map[string]any{"file_id": fileID, "target_path": targetPath}
	return c.call(ctx, "download_cloud_file", args, nil)
}

// DeleteCloudFile removes a remote file.
func (c *Client) DeleteCloudFile(ctx context.Context, fileID string) error {
	return c.call(ctx, "delete_cloud_file", map[string]any{"file_id": fileID}, nil)
}

// CloudQuota reports used and total bytes at the cloud provider.
func (c *Client) CloudQuota(ctx context.Context) (model.CloudQuota, error) {
	var quota model.CloudQuota
	err := c.call(ctx, "get_cloud_quota", nil, &quota)
	return quota, err
}

// DetectLocation asks the engine to geolocate the machine.
func (c *Client) DetectLocation(ctx context.Context) (model.Location, error) {
	var loc model.Location
	err := c.call(ctx, "detect_location", nil, &loc)
	return loc, err
}

// SetLocation stores an explicit location.
func (c *Client) SetLocation(ctx context.Context, loc model.Location) error {
	return c.call(ctx, "set_location", map[string]any{"location": loc}, nil)
}

// EngineVersion reports the engine's version string.
func (c *Client) EngineVersion(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	err := c.call(ctx, "get_version", nil, &out)
	return out.Version, err
}

// FolderStats walks the given paths and reports file count and total size.
func (c *Client) FolderStats(ctx context.Context, paths []string) (model.FolderStats, error) {
	var stats model.FolderStats
	err := c.call(ctx, "get_folder_stats", map[string]any{"paths": paths}, &stats)
	return stats, err
}
