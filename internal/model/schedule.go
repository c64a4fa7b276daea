package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cadence is the kind of recurrence a schedule follows.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
	CadenceManual  Cadence = "manual"
)

// Schedule triggers backups of a set on a recurring cadence or a weather
// alert. It references its backup set by id but does not own it. NextRun and
// LastRun are computed by the engine.
type Schedule struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	BackupSetID       string     `json:"backup_set_id"`
	Cadence           Cadence    `json:"cadence"`
	Enabled           bool       `json:"enabled"`
	TimeOfDay         string     `json:"time_of_day,omitempty"` // "HH:MM"
	DaysOfWeek        []int      `json:"days_of_week,omitempty"` // 0=Sunday
	DayOfMonth        *int       `json:"day_of_month,omitempty"`
	WeatherTrigger    bool       `json:"weather_trigger"`
	WeatherAlertTypes []string   `json:"weather_alert_types,omitempty"`
	LastRun           *time.Time `json:"last_run,omitempty"`
	NextRun           *time.Time `json:"next_run,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewSchedule creates an enabled schedule for the given set.
func NewSchedule(name, backupSetID string, cadence Cadence) Schedule {
	now := time.Now().UTC()
	return Schedule{
		ID:          uuid.NewString(),
		Name:        name,
		BackupSetID: backupSetID,
		Cadence:     cadence,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Normalize clears cadence-specific fields that do not belong to the current
// cadence, so editing a schedule from weekly to daily does not leave a stale
// weekday set behind.
func (s *Schedule) Normalize() {
	switch s.Cadence {
	case CadenceWeekly:
		s.DayOfMonth = nil
	case CadenceMonthly:
		s.DaysOfWeek = nil
	default:
		s.DaysOfWeek = nil
		s.DayOfMonth = nil
	}
	if s.Cadence == CadenceManual {
		s.TimeOfDay = ""
	}
}

// WeatherAlertType names a severe-weather category the engine can trigger on.
type WeatherAlertType string

const (
	AlertThunderstorm  WeatherAlertType = "thunderstorm"
	AlertTornado       WeatherAlertType = "tornado"
	AlertHurricane     WeatherAlertType = "hurricane"
	AlertFlashFlood    WeatherAlertType = "flash_flood"
	AlertSevereWeather WeatherAlertType = "severe_weather"
	AlertWinterStorm   WeatherAlertType = "winter_storm"
	AlertExtremeHeat   WeatherAlertType = "extreme_heat"
	AlertExtremeCold   WeatherAlertType = "extreme_cold"
)

// AllAlertTypes lists the supported alert types in display order.
func AllAlertTypes() []WeatherAlertType {
	return []WeatherAlertType{
		AlertThunderstorm,
		AlertTornado,
		AlertHurricane,
		AlertFlashFlood,
		AlertSevereWeather,
		AlertWinterStorm,
		AlertExtremeHeat,
		AlertExtremeCold,
	}
}

// ValidAlertType reports whether raw names a supported alert type.
func ValidAlertType(raw string) bool {
	for _, at := range AllAlertTypes() {
		if string(at) == raw {
			return true
		}
	}
	return false
}

// AlertTypeFromEvent maps a National Weather Service event name to an alert
// type, or "" when the event is not one the engine triggers on.
func AlertTypeFromEvent(event string) WeatherAlertType {
	e := strings.ToLower(event)
	switch {
	case strings.Contains(e, "tornado"):
		return AlertTornado
	case strings.Contains(e, "hurricane"), strings.Contains(e, "tropical"):
		return AlertHurricane
	case strings.Contains(e, "thunder"):
		return AlertThunderstorm
	case strings.Contains(e, "flood"):
		return AlertFlashFlood
	case strings.Contains(e, "winter"), strings.Contains(e, "blizzard"), strings.Contains(e, "ice"):
		return AlertWinterStorm
	case strings.Contains(e, "heat"):
		return AlertExtremeHeat
	case strings.Contains(e, "cold"), strings.Contains(e, "freeze"):
		return AlertExtremeCold
	case strings.Contains(e, "severe"):
		return AlertSevereWeather
	default:
		return ""
	}
}

// DisplayName returns the human-readable label for the alert type.
func (t WeatherAlertType) DisplayName() string {
	switch t {
	case AlertThunderstorm:
		return "Thunderstorm"
	case AlertTornado:
		return "Tornado"
	case AlertHurricane:
		return "Hurricane/Tropical Storm"
	case AlertFlashFlood:
		return "Flash Flood"
	case AlertSevereWeather:
		return "Severe Weather"
	case AlertWinterStorm:
		return "Winter Storm"
	case AlertExtremeHeat:
		return "Extreme Heat"
	case AlertExtremeCold:
		return "Extreme Cold"
	default:
		return string(t)
	}
}
