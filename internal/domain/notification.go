package domain

import "time"

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelRealtime Channel = "REALTIME"
	ChannelPush     Channel = "PUSH"
)

// NotificationPriority orders delivery urgency.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "LOW"
	PriorityNormal NotificationPriority = "NORMAL"
	PriorityHigh   NotificationPriority = "HIGH"
)

// NotificationTemplate is a text pattern with {{token}} placeholders rendered
// into concrete notification titles and bodies.
type NotificationTemplate struct {
	ID            string
	Type          string
	Title         string
	Body          string
	Channels      []Channel
	Priority      NotificationPriority
	ActionLink    string
	RequiredVars  []string
	AutoCreated   bool
	UsageCount    int64
	LastUsedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Notification is one rendered message for one account. Only the read flag is
// ever updated after creation.
type Notification struct {
	ID         string
	AccountID  string
	Type       string
	Title      string
	Body       string
	ActionLink string
	Channels   []Channel
	Priority   NotificationPriority
	Read       bool
	ReadAt     *time.Time
	Metadata   map[string]any
	CreatedAt  time.Time
}

// NotificationPreference holds an account's personal delivery settings.
type NotificationPreference struct {
	AccountID     string
	Enabled       bool
	DisabledTypes []string
	// Quiet hours suppress delivery entirely; expressed as local hours [start, end).
	QuietStartHour *int
	QuietEndHour   *int
	UpdatedAt      time.Time
}

// Suppressed reports whether a notification of the given type should be
// dropped for this account at the given time.
func (p *NotificationPreference) Suppressed(notificationType string, at time.Time) bool {
	if p == nil {
		return false
	}
	if !p.Enabled {
		return true
	}
	for _, t := range p.DisabledTypes {
		if t == notificationType {
			return true
		}
	}
	if p.QuietStartHour != nil && p.QuietEndHour != nil {
		h := at.Hour()
		start, end := *p.QuietStartHour, *p.QuietEndHour
		if start <= end {
			if h >= start && h < end {
				return true
			}
		} else if h >= start || h < end { // window crosses midnight
			return true
		}
	}
	return false
}
