package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"taller/internal/model"
	"taller/internal/schedule"
)

// DayHoursConfig is the schedule of one weekday.
type DayHoursConfig struct {
	Closed          bool   `yaml:"closed"`
	Open            string `yaml:"open"`             // "09:00"
	Close           string `yaml:"close"`            // "18:00"
	MaxSimultaneous int    `yaml:"max_simultaneous"` // bays
}

// HolidayConfig represents a holiday configuration.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-12-25"
	Name string `yaml:"name"` // "Navidad"
}

// ServiceConfig is a catalog entry seeded from the file.
type ServiceConfig struct {
	Name            string  `yaml:"name"`
	Description     string  `yaml:"description"`
	DurationMinutes int     `yaml:"duration_minutes"`
	Price           float64 `yaml:"price"`
	Inactive        bool    `yaml:"inactive"`
}

// WorkshopConfig is the root of workshop.yaml. Weekly keys are 1=Mon .. 7=Sun;
// weekdays not listed fall back to Defaults.
type WorkshopConfig struct {
	TurnDurationMinutes int                    `yaml:"turn_duration_minutes"`
	Defaults            DayHoursConfig         `yaml:"defaults"`
	Weekly              map[int]DayHoursConfig `yaml:"weekly"`
	Holidays            []HolidayConfig        `yaml:"holidays"`
	Services            []ServiceConfig        `yaml:"services"`
}

// LoadWorkshopConfig loads and validates workshop configuration from YAML file.
func LoadWorkshopConfig(path string) (*WorkshopConfig, error) {
	if path == "" {
		path = "configs/workshop.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workshop config: %w", err)
	}

	return parseWorkshopConfig(data)
}

func parseWorkshopConfig(data []byte) (*WorkshopConfig, error) {
	var cfg WorkshopConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse workshop config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate workshop config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *WorkshopConfig) Validate() error {
	if c.TurnDurationMinutes != 0 && !model.ValidTurnDuration(c.TurnDurationMinutes) {
		return fmt.Errorf("turn_duration_minutes: %d must be between %d and %d in steps of %d",
			c.TurnDurationMinutes, model.MinTurnDurationMinutes, model.MaxTurnDurationMinutes, model.TurnDurationStepMinutes)
	}

	if err := validateDay(c.Defaults, "defaults"); err != nil {
		return err
	}
	for day, hours := range c.Weekly {
		if !schedule.ValidWeekday(day) {
			return fmt.Errorf("weekly: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", day)
		}
		if err := validateDay(hours, fmt.Sprintf("weekly[%d]", day)); err != nil {
			return err
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse(schedule.DateLayout, h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	names := make(map[string]bool)
	for i, s := range c.Services {
		if s.Name == "" {
			return fmt.Errorf("service[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("service[%d]: duplicate name '%s'", i, s.Name)
		}
		names[s.Name] = true
		if s.DurationMinutes <= 0 {
			return fmt.Errorf("service[%d]: duration_minutes must be positive", i)
		}
		if s.Price < 0 {
			return fmt.Errorf("service[%d]: price cannot be negative", i)
		}
	}

	return nil
}

// validateDay checks a weekday schedule. Closed days need no hours.
func validateDay(d DayHoursConfig, prefix string) error {
	if d.Closed {
		return nil
	}
	if d.Open == "" && d.Close == "" {
		return nil
	}

	open, err := time.Parse("15:04", d.Open)
	if err != nil {
		return fmt.Errorf("%s.open: invalid format '%s', expected HH:MM", prefix, d.Open)
	}
	closing, err := time.Parse("15:04", d.Close)
	if err != nil {
		return fmt.Errorf("%s.close: invalid format '%s', expected HH:MM", prefix, d.Close)
	}
	if !closing.After(open) {
		return fmt.Errorf("%s: close must be after open", prefix)
	}
	if d.MaxSimultaneous < 0 {
		return fmt.Errorf("%s.max_simultaneous cannot be negative", prefix)
	}
	return nil
}

// OperatingHours expands the file into one row per weekday. Missing values
// fall back to defaults, then to 09:00-18:00 with three bays.
func (c *WorkshopConfig) OperatingHours() []model.OperatingHours {
	hours := make([]model.OperatingHours, 0, 7)
	for day := schedule.Monday; day <= schedule.Sunday; day++ {
		d, ok := c.Weekly[day]
		if !ok {
			d = c.Defaults
		}

		open, closing, capacity := d.Open, d.Close, d.MaxSimultaneous
		if open == "" {
			open = c.Defaults.Open
		}
		if closing == "" {
			closing = c.Defaults.Close
		}
		if capacity <= 0 {
			capacity = c.Defaults.MaxSimultaneous
		}
		if open == "" || closing == "" {
			open, closing = "09:00", "18:00"
		}
		if capacity <= 0 {
			capacity = 3
		}

		hours = append(hours, model.OperatingHours{
			Weekday:                 day,
			IsWorkingDay:            !d.Closed,
			OpenTime:                open,
			CloseTime:               closing,
			MaxSimultaneousServices: capacity,
		})
	}
	return hours
}

// IsHoliday checks if a date is a holiday.
func (c *WorkshopConfig) IsHoliday(date time.Time) (bool, string) {
	dateStr := date.Format(schedule.DateLayout)
	for _, h := range c.Holidays {
		if h.Date == dateStr {
			return true, h.Name
		}
	}
	return false, ""
}

// String returns a summary of the configuration.
func (c *WorkshopConfig) String() string {
	return fmt.Sprintf("WorkshopConfig: turn %d min, %d weekly overrides, %d holidays, %d services",
		c.TurnDurationMinutes, len(c.Weekly), len(c.Holidays), len(c.Services))
}
