package repository

import "time"

// Payment lifecycle states.
const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
	StatusMerged    = "Merged"
	StatusConfirmed = "Confirmed"
)

// Directions derived from the payment type.
const (
	DirectionIn  = "In"
	DirectionOut = "Out"
)

// PaymentMethod represents a payment_methods row. Banks share this table
// with type = "Bank"; ordinary methods carry type = "Payment Method".
type PaymentMethod struct {
	ID       int64
	Name     string
	Type     string
	Keywords string
}

// PaymentType represents a payment_types row.
type PaymentType struct {
	ID       int64
	Name     string
	Type     string // In | Out
	Keywords string
	Category string // Operating | Non-Operating
}

// Apartment represents an apartments row.
type Apartment struct {
	ID       int64
	Name     string
	Keywords string
}

// Tenant represents a tenants row.
type Tenant struct {
	ID       int64
	FullName string
	Email    string
	Phone    string
}

// Booking represents a bookings row, pre-joined with its apartment and tenant.
type Booking struct {
	ID          int64
	ApartmentID int64
	TenantID    int64
	StartDate   time.Time
	EndDate     time.Time
	Keywords    string
	Status      string
	Apartment   *Apartment
	Tenant      *Tenant
}

// Payment represents a payments row. Relation pointers are populated by the
// joined queries and nil when the foreign key is null.
type Payment struct {
	ID               int64
	Amount           float64
	Date             time.Time
	Notes            string
	Keywords         string
	PaymentTypeID    int64
	PaymentMethodID  *int64
	BankID           *int64
	ApartmentID      *int64
	BookingID        *int64
	Status           string
	MergedPaymentKey *string
	CreatedAt        time.Time
	UpdatedAt        time.Time

	PaymentType   *PaymentType
	PaymentMethod *PaymentMethod
	Bank          *PaymentMethod
	Apartment     *Apartment
	Booking       *Booking
}

// TenantName returns the tenant attached through the booking, if any.
func (p Payment) TenantName() string {
	if p.Booking != nil && p.Booking.Tenant != nil {
		return p.Booking.Tenant.FullName
	}
	return ""
}

// ApartmentName prefers the direct apartment link and falls back to the
// booking's apartment.
func (p Payment) ApartmentName() string {
	if p.Apartment != nil {
		return p.Apartment.Name
	}
	if p.Booking != nil && p.Booking.Apartment != nil {
		return p.Booking.Apartment.Name
	}
	return ""
}
