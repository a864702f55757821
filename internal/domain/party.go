package domain

import "time"

// Person is a hospital employee. A person may or may not have a login account.
type Person struct {
	ID        string
	Name      string
	UnitID    *string
	Phone     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account is a login identity linked to at most one person. Notifications are
// addressed to accounts, never to persons directly.
type Account struct {
	ID        string
	PersonID  string
	Username  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Unit is an organizational unit (department, ward, service team).
type Unit struct {
	ID   string
	Name string
	// DispatcherIDs lists persons authorized to route unit-addressed work
	// orders to an individual handler.
	DispatcherIDs []string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Category classifies work orders and carries the expected handling duration
// used to derive promised-by at acceptance time.
type Category struct {
	ID            string
	Name          string
	DurationUnit  DurationUnit
	DurationValue int
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Snapshot captures the immutable view embedded into new work orders.
func (c *Category) Snapshot() CategorySnapshot {
	return CategorySnapshot{
		Name:          c.Name,
		DurationUnit:  c.DurationUnit,
		DurationValue: c.DurationValue,
	}
}
