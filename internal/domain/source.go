package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// SourceType represents how a source's content enters the system.
// Values include SourceTypeScraping, SourceTypeAPI, SourceTypeManual,
// SourceTypeWebhook, and SourceTypeSystem.
type SourceType string

const (
	SourceTypeScraping SourceType = "scraping"
	SourceTypeAPI      SourceType = "api"
	SourceTypeManual   SourceType = "manual"
	SourceTypeWebhook  SourceType = "webhook"
	SourceTypeSystem   SourceType = "system"
)

// IntervalScheduled reports whether this source type is eligible for
// interval-based scheduling. Webhook and manual sources are externally
// triggered and never get an interval job.
func (t SourceType) IntervalScheduled() bool {
	switch t {
	case SourceTypeScraping, SourceTypeAPI, SourceTypeSystem:
		return true
	}
	return false
}

// SourceConfig is a custom type for storing the arbitrary per-source
// config blob (target URL, connector type, ...) as JSON in the database.
type SourceConfig map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (c SourceConfig) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (c *SourceConfig) Scan(value interface{}) error {
	if value == nil {
		*c = SourceConfig{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan SourceConfig")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, c)
}

// GetString returns a string-typed config value, or "" if absent.
func (c SourceConfig) GetString(key string) string {
	if c == nil {
		return ""
	}
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// ScheduleConfig describes when a source should run: either an interval
// frequency in minutes, or a daily cron time in "HH:MM" (24h) format.
// Stored as JSON in the database.
type ScheduleConfig struct {
	FrequencyMinutes int    `json:"frequency_minutes,omitempty"`
	Cron             string `json:"cron,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
func (s ScheduleConfig) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (s *ScheduleConfig) Scan(value interface{}) error {
	if value == nil {
		*s = ScheduleConfig{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan ScheduleConfig")
		}
		bytes = []byte(str)
	}
	if len(bytes) == 0 {
		*s = ScheduleConfig{}
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Source represents a monitored content origin with its health and
// circuit-breaker state. The health tracker exclusively owns the health
// and breaker fields; the schedule reconciler only reads schedule_config
// and type.
type Source struct {
	ID        string       `gorm:"type:text;primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Type      SourceType   `gorm:"type:text;not null" json:"type"`
	CompanyID string       `gorm:"type:text;index" json:"company_id"`
	Config    SourceConfig `gorm:"type:text" json:"config"`

	Schedule ScheduleConfig `gorm:"type:text;column:schedule_config" json:"schedule_config"`

	ConsecutiveFailures int        `gorm:"default:0" json:"consecutive_failures"`
	TotalSuccesses      int64      `gorm:"default:0" json:"total_successes"`
	TotalFailures       int64      `gorm:"default:0" json:"total_failures"`
	LastError           string     `gorm:"type:text" json:"last_error,omitempty"`
	LastErrorAt         *time.Time `json:"last_error_at,omitempty"`
	LastScrapedAt       *time.Time `json:"last_scraped_at,omitempty"`

	CircuitBreakerOpen     bool       `gorm:"default:false" json:"circuit_breaker_open"`
	CircuitBreakerOpenedAt *time.Time `json:"circuit_breaker_opened_at,omitempty"`

	// ContentCount7d is a rolling count of content units produced in the
	// last 7 days, used only as a scheduling priority hint.
	ContentCount7d int `gorm:"column:content_count_7d;default:0" json:"content_count_7d"`

	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Source.
func (Source) TableName() string {
	return "sources"
}

// SourceJobPrefix is the naming prefix for scheduler jobs derived from
// sources. Job IDs are deterministic functions of the source ID, so
// scheduling upserts are idempotent.
const SourceJobPrefix = "source_"

// JobID returns the scheduler job ID for this source.
func (s *Source) JobID() string {
	return SourceJobPrefix + s.ID
}
