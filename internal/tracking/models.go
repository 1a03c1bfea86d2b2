// Package tracking stores the devices, sessions and page views written by the
// tracker and classifies the devices they come from.
package tracking

import "time"

// Device is the server-side mirror of a browser profile.
type Device struct {
	DeviceID      string     `gorm:"primaryKey;column:device_id" json:"device_id"`
	UserID        string     `gorm:"index" json:"user_id,omitempty"`
	FirstSeenAt   *time.Time `json:"first_seen_at,omitempty"`
	LastSeenAt    time.Time  `gorm:"index" json:"last_seen_at"`
	DeviceType    string     `json:"device_type"`
	OS            string     `gorm:"column:os" json:"os"`
	Lang          string     `json:"lang"`
	TZ            string     `gorm:"column:tz" json:"tz"`
	UserAgent     string     `json:"user_agent"`
	IsPWA         bool       `gorm:"column:is_pwa" json:"is_pwa"`
	FirstReferrer string     `json:"first_referrer,omitempty"`
	LastReferrer  string     `json:"last_referrer,omitempty"`
}

func (Device) TableName() string { return "app_devices" }

// Session is one span of continuous activity from a device.
type Session struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	DeviceID       string    `gorm:"index" json:"device_id"`
	UserID         string    `gorm:"index" json:"user_id,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastSeenAt     time.Time `gorm:"index" json:"last_seen_at"`
	DurationMs     int64     `json:"duration_ms"`
	CurrentPath    string    `json:"current_path"`
	CurrentEventID string    `json:"current_event_id,omitempty"`
	IsNewDevice    bool      `json:"is_new_device"`
	DeviceType     string    `json:"device_type"`
	OS             string    `gorm:"column:os" json:"os"`
	Lang           string    `json:"lang"`
	TZ             string    `gorm:"column:tz" json:"tz"`
	UserAgent      string    `json:"user_agent"`
	IsPWA          bool      `gorm:"column:is_pwa" json:"is_pwa"`
	Country        string    `json:"country,omitempty"`
}

func (Session) TableName() string { return "app_sessions" }

// PageView is one navigation's visible lifetime in a tab.
type PageView struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	SessionID  string     `gorm:"index" json:"session_id"`
	DeviceID   string     `json:"device_id"`
	UserID     string     `json:"user_id,omitempty"`
	Path       string     `json:"path"`
	Screen     string     `json:"screen"`
	Referrer   string     `json:"referrer,omitempty"`
	EventID    string     `gorm:"index" json:"event_id,omitempty"`
	StartedAt  time.Time  `gorm:"index" json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMs *int64     `json:"duration_ms,omitempty"`
}

func (PageView) TableName() string { return "app_page_views" }

// DeviceMeta describes the environment a write comes from.
type DeviceMeta struct {
	DeviceType string `json:"device_type" validate:"omitempty,oneof=mobile tablet desktop"`
	OS         string `json:"os" validate:"omitempty,oneof=android ios windows mac linux other"`
	Lang       string `json:"lang" validate:"max=35"`
	TZ         string `json:"tz" validate:"max=64"`
	UserAgent  string `json:"user_agent" validate:"max=1024"`
	IsPWA      bool   `json:"is_pwa"`
}

// DeviceUpsert refreshes a device's last-seen state. First-seen fields are
// only written when IsNew is set.
type DeviceUpsert struct {
	DeviceMeta
	DeviceID string    `json:"device_id" validate:"required,max=64"`
	UserID   string    `json:"user_id,omitempty" validate:"max=64"`
	SeenAt   time.Time `json:"seen_at" validate:"required"`
	IsNew    bool      `json:"is_new"`
	Referrer string    `json:"referrer,omitempty" validate:"max=2048"`
}

// SessionStart creates a brand-new session row.
type SessionStart struct {
	DeviceMeta
	ID          string    `json:"id" validate:"required,max=64"`
	DeviceID    string    `json:"device_id" validate:"required,max=64"`
	UserID      string    `json:"user_id,omitempty" validate:"max=64"`
	StartedAt   time.Time `json:"started_at" validate:"required"`
	Path        string    `json:"path" validate:"max=2048"`
	EventID     string    `json:"event_id,omitempty" validate:"max=64"`
	IsNewDevice bool      `json:"is_new_device"`
	Country     string    `json:"-"`
}

// SessionTouch extends a live session.
type SessionTouch struct {
	ID         string    `json:"id" validate:"required,max=64"`
	SeenAt     time.Time `json:"seen_at" validate:"required"`
	DurationMs int64     `json:"duration_ms" validate:"gte=0"`
	Path       string    `json:"path" validate:"max=2048"`
	EventID    string    `json:"event_id,omitempty" validate:"max=64"`
	UserID     string    `json:"user_id,omitempty" validate:"max=64"`
}

// ViewStart opens a page view.
type ViewStart struct {
	ID        string    `json:"id" validate:"required,max=64"`
	SessionID string    `json:"session_id" validate:"required,max=64"`
	DeviceID  string    `json:"device_id" validate:"required,max=64"`
	UserID    string    `json:"user_id,omitempty" validate:"max=64"`
	Path      string    `json:"path" validate:"max=2048"`
	Screen    string    `json:"screen" validate:"max=2048"`
	Referrer  string    `json:"referrer,omitempty" validate:"max=2048"`
	EventID   string    `json:"event_id,omitempty" validate:"max=64"`
	StartedAt time.Time `json:"started_at" validate:"required"`
}

// ViewEnd closes a page view.
type ViewEnd struct {
	ID         string    `json:"id" validate:"required,max=64"`
	EndedAt    time.Time `json:"ended_at" validate:"required"`
	DurationMs int64     `json:"duration_ms" validate:"gte=0"`
}
