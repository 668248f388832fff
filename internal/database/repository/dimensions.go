package repository

import (
	"context"
	"database/sql"
)

// PaymentMethodRepo handles payment methods and banks.
type PaymentMethodRepo struct{ db *sql.DB }

func NewPaymentMethodRepo(db *sql.DB) *PaymentMethodRepo { return &PaymentMethodRepo{db: db} }

func (r *PaymentMethodRepo) Upsert(ctx context.Context, m PaymentMethod) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO payment_methods(name, type, keywords)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
	 type=excluded.type,
	 keywords=excluded.keywords;
	`, m.Name, m.Type, m.Keywords)
	return err
}

func (r *PaymentMethodRepo) List(ctx context.Context) ([]PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, type, keywords FROM payment_methods ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentMethod
	for rows.Next() {
		var m PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.Keywords); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PaymentTypeRepo handles payment types.
type PaymentTypeRepo struct{ db *sql.DB }

func NewPaymentTypeRepo(db *sql.DB) *PaymentTypeRepo { return &PaymentTypeRepo{db: db} }

func (r *PaymentTypeRepo) Insert(ctx context.Context, t PaymentType) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_types(name, type, keywords, category) VALUES (?, ?, ?, ?)`,
		t.Name, t.Type, t.Keywords, t.Category)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *PaymentTypeRepo) List(ctx context.Context) ([]PaymentType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, type, keywords, category FROM payment_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentType
	for rows.Next() {
		var t PaymentType
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.Keywords, &t.Category); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ApartmentRepo handles apartments.
type ApartmentRepo struct{ db *sql.DB }

func NewApartmentRepo(db *sql.DB) *ApartmentRepo { return &ApartmentRepo{db: db} }

func (r *ApartmentRepo) Upsert(ctx context.Context, a Apartment) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO apartments(name, keywords)
	VALUES (?, ?)
	ON CONFLICT(name) DO UPDATE SET keywords=excluded.keywords;
	`, a.Name, a.Keywords)
	return err
}

func (r *ApartmentRepo) List(ctx context.Context) ([]Apartment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, keywords FROM apartments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Apartment
	for rows.Next() {
		var a Apartment
		if err := rows.Scan(&a.ID, &a.Name, &a.Keywords); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
