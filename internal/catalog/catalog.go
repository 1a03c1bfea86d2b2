// Package catalog reads the events, clubs and DJs the app lists.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Event statuses
const (
	StatusPublished = "published"
	StatusDraft     = "draft"
	StatusCancelled = "cancelled"
)

// Target types that can be named by NamesByID
const (
	TypeEvent = "event"
	TypeClub  = "club"
	TypeDJ    = "dj"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Event struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	ClubID      string    `gorm:"index" json:"club_id,omitempty"`
	Zone        string    `gorm:"index" json:"zone,omitempty"`
	Status      string    `gorm:"index;default:published" json:"status"`
	Genres      string    `gorm:"type:text;default:'[]'" json:"-"`
	StartAt     time.Time `gorm:"index" json:"start_at"`
	URLReferral string    `json:"url_referral,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Club struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Zone      string    `json:"zone,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type DJ struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (DJ) TableName() string { return "djs" }

// EventNotFoundError is returned when an event id does not exist.
type EventNotFoundError struct {
	ID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("event %s not found", e.ID)
}

// Filter narrows an event listing. Empty fields are ignored.
type Filter struct {
	Zone   string
	Status string
	Genre  string
	From   *time.Time
	To     *time.Time
	Limit  int
}

// FindEvent loads one event.
func FindEvent(db *gorm.DB, id string) (*Event, error) {
	var event Event
	err := db.Where("id = ?", id).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &EventNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", id, err)
	}
	return &event, nil
}

// FindReferralURL returns the partner URL of an event, possibly empty.
func FindReferralURL(db *gorm.DB, eventID string) (string, error) {
	event, err := FindEvent(db, eventID)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(event.URLReferral), nil
}

// ListEvents returns events ordered by start time. When the schema lacks the
// zone or status column the query is retried once without that filter.
func ListEvents(db *gorm.DB, logger *slog.Logger, filter Filter) ([]Event, error) {
	events, err := listEvents(db, filter)
	if err == nil {
		return events, nil
	}

	column, drifted := missingColumn(err)
	if !drifted {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("Event listing hit a missing column, retrying without filter",
		slog.String("column", column),
		slog.Any("error", err))

	switch column {
	case "zone":
		filter.Zone = ""
	case "status":
		filter.Status = ""
	}

	events, err = listEvents(db, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

func listEvents(db *gorm.DB, filter Filter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	query := db.Model(&Event{})
	if filter.Zone != "" {
		query = query.Where("zone = ?", filter.Zone)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Genre != "" {
		query = query.Where("EXISTS (SELECT 1 FROM json_each(events.genres) WHERE json_each.value = ?)", filter.Genre)
	}
	if filter.From != nil {
		query = query.Where("start_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("start_at <= ?", filter.To.UTC())
	}

	var events []Event
	err := query.Order("start_at ASC").Limit(limit).Find(&events).Error
	return events, err
}

// missingColumn reports whether err is a SQLite "no such column" error for
// one of the optional filter columns.
func missingColumn(err error) (string, bool) {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "no such column") {
		return "", false
	}
	for _, column := range []string{"zone", "status"} {
		if strings.Contains(msg, column) {
			return column, true
		}
	}
	return "", false
}

// NamesByID resolves display names for ids of one target type. Missing ids
// are simply absent from the result.
func NamesByID(db *gorm.DB, targetType string, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	var model any
	switch targetType {
	case TypeEvent:
		model = &Event{}
	case TypeClub:
		model = &Club{}
	case TypeDJ:
		model = &DJ{}
	default:
		return names, fmt.Errorf("unknown target type %q", targetType)
	}

	var rows []struct {
		ID   string
		Name string
	}
	if err := db.Model(model).Select("id, name").Where("id IN ?", ids).Scan(&rows).Error; err != nil {
		return names, fmt.Errorf("failed to resolve %s names: %w", targetType, err)
	}
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

// DJsMatching returns the DJs whose name contains any of terms, ignoring
// case. LIKE wildcards in terms are treated as spaces.
func DJsMatching(db *gorm.DB, terms []string) ([]DJ, error) {
	var djs []DJ
	query := db.Model(&DJ{})
	var conds []string
	var args []any
	for _, t := range terms {
		t = strings.TrimSpace(likeEscaper.Replace(strings.ToLower(t)))
		if t == "" {
			continue
		}
		conds = append(conds, "LOWER(name) LIKE ?")
		args = append(args, "%"+t+"%")
	}
	if len(conds) == 0 {
		return djs, nil
	}
	err := query.Where(strings.Join(conds, " OR "), args...).Order("name ASC").Find(&djs).Error
	return djs, err
}

var likeEscaper = strings.NewReplacer("%", " ", "_", " ", ",", " ")
