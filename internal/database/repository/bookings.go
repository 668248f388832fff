package repository

import (
	"context"
	"database/sql"
	"time"
)

// TenantRepo handles tenants.
type TenantRepo struct{ db *sql.DB }

func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

func (r *TenantRepo) Insert(ctx context.Context, t Tenant) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants(full_name, email, phone) VALUES (?, ?, ?)`,
		t.FullName, t.Email, t.Phone)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// BookingRepo handles bookings.
type BookingRepo struct{ db *sql.DB }

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

func (r *BookingRepo) Insert(ctx context.Context, b Booking) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO bookings(apartment_id, tenant_id, start_date, end_date, keywords, status)
	VALUES (?, ?, ?, ?, ?, ?)`,
		b.ApartmentID, b.TenantID, b.StartDate, b.EndDate, b.Keywords, b.Status)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListActiveWithin returns bookings whose stay overlaps [from, to],
// pre-joined with apartment and tenant.
func (r *BookingRepo) ListActiveWithin(ctx context.Context, from, to time.Time) ([]Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT b.id, b.apartment_id, b.tenant_id, b.start_date, b.end_date, b.keywords, b.status,
	       a.name, a.keywords,
	       t.full_name, t.email, t.phone
	FROM bookings b
	JOIN apartments a ON a.id = b.apartment_id
	JOIN tenants t ON t.id = b.tenant_id
	WHERE b.start_date <= ? AND b.end_date >= ?
	ORDER BY b.start_date, b.id`, to, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		var b Booking
		var ap Apartment
		var te Tenant
		if err := rows.Scan(&b.ID, &b.ApartmentID, &b.TenantID, &b.StartDate, &b.EndDate, &b.Keywords, &b.Status,
			&ap.Name, &ap.Keywords, &te.FullName, &te.Email, &te.Phone); err != nil {
			return nil, err
		}
		ap.ID = b.ApartmentID
		te.ID = b.TenantID
		b.Apartment = &ap
		b.Tenant = &te
		out = append(out, b)
	}
	return out, rows.Err()
}
