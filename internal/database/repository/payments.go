package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// PaymentKeySeparator joins the merge keys of several bank rows when a
// selection is committed against one ledger record. The key generator must
// never emit it; any stored key containing it is a concatenation of sub-keys.
const PaymentKeySeparator = "###||###"

// SplitMergedKey splits a stored merged_payment_key into its sub-keys.
func SplitMergedKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, PaymentKeySeparator)
}

// PaymentRepo handles ledger payments.
type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentSelect = `
SELECT p.id, p.amount, p.payment_date, p.notes, p.keywords,
       p.payment_type_id, p.payment_method_id, p.bank_id, p.apartment_id, p.booking_id,
       p.payment_status, p.merged_payment_key, p.created_at, p.updated_at,
       pt.name, pt.type, pt.keywords, pt.category,
       pm.name, pm.type, pm.keywords,
       bk.name, bk.type, bk.keywords,
       ap.name, ap.keywords,
       bo.apartment_id, bo.tenant_id, bo.start_date, bo.end_date, bo.keywords, bo.status,
       boap.name, boap.keywords,
       te.full_name, te.email, te.phone
FROM payments p
JOIN payment_types pt ON pt.id = p.payment_type_id
LEFT JOIN payment_methods pm ON pm.id = p.payment_method_id
LEFT JOIN payment_methods bk ON bk.id = p.bank_id
LEFT JOIN apartments ap ON ap.id = p.apartment_id
LEFT JOIN bookings bo ON bo.id = p.booking_id
LEFT JOIN apartments boap ON boap.id = bo.apartment_id
LEFT JOIN tenants te ON te.id = bo.tenant_id`

// FindByDateRange returns payments of every status within [from, to],
// pre-joined with payment type, method, bank, apartment, booking and tenant.
func (r *PaymentRepo) FindByDateRange(ctx context.Context, from, to time.Time) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		paymentSelect+` WHERE p.payment_date >= ? AND p.payment_date <= ? ORDER BY p.payment_date, p.id`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

// FindMergedWithKeys returns Merged payments whose stored merge key (split on
// the group separator) contains any of the supplied bank-row keys as a
// substring. The substring check runs in Go because keys are free text.
func (r *PaymentRepo) FindMergedWithKeys(ctx context.Context, keys []string) ([]Payment, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		paymentSelect+` WHERE p.payment_status = ? AND p.merged_payment_key IS NOT NULL ORDER BY p.payment_date, p.id`,
		StatusMerged)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	merged, err := collectPayments(rows)
	if err != nil {
		return nil, err
	}
	var out []Payment
	for _, p := range merged {
		if p.MergedPaymentKey == nil {
			continue
		}
		if anyKeyContained(SplitMergedKey(*p.MergedPaymentKey), keys) {
			out = append(out, p)
		}
	}
	return out, nil
}

func anyKeyContained(stored, wanted []string) bool {
	for _, s := range stored {
		for _, w := range wanted {
			if w != "" && strings.Contains(s, w) {
				return true
			}
		}
	}
	return false
}

// Get returns one payment by id, or nil when absent.
func (r *PaymentRepo) Get(ctx context.Context, id int64) (*Payment, error) {
	row := r.db.QueryRowContext(ctx, paymentSelect+` WHERE p.id = ?`, id)
	p, err := scanPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a payment and returns the allocated id.
func (r *PaymentRepo) Create(ctx context.Context, p Payment) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO payments(
	 amount, payment_date, notes, keywords, payment_type_id, payment_method_id,
	 bank_id, apartment_id, booking_id, payment_status, merged_payment_key,
	 created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, p.Amount, p.Date, p.Notes, p.Keywords, p.PaymentTypeID, p.PaymentMethodID,
		p.BankID, p.ApartmentID, p.BookingID, p.Status, p.MergedPaymentKey)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Update rewrites the mutable fields of an existing payment.
func (r *PaymentRepo) Update(ctx context.Context, p Payment) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE payments SET
	 amount = ?, payment_date = ?, notes = ?, keywords = ?, payment_type_id = ?,
	 payment_method_id = ?, bank_id = ?, apartment_id = ?, booking_id = ?,
	 payment_status = ?, merged_payment_key = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?;
	`, p.Amount, p.Date, p.Notes, p.Keywords, p.PaymentTypeID,
		p.PaymentMethodID, p.BankID, p.ApartmentID, p.BookingID,
		p.Status, p.MergedPaymentKey, p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func collectPayments(rows *sql.Rows) ([]Payment, error) {
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// scanPayment handles nullable joins for both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row scanner) (Payment, error) {
	var p Payment
	var mergedKey sql.NullString
	var methodID, bankID, apartmentID, bookingID sql.NullInt64

	var pt PaymentType
	var pmName, pmType, pmKeywords sql.NullString
	var bkName, bkType, bkKeywords sql.NullString
	var apName, apKeywords sql.NullString
	var boApartmentID, boTenantID sql.NullInt64
	var boStart, boEnd sql.NullTime
	var boKeywords, boStatus sql.NullString
	var boApName, boApKeywords sql.NullString
	var teName, teEmail, tePhone sql.NullString

	if err := row.Scan(
		&p.ID, &p.Amount, &p.Date, &p.Notes, &p.Keywords,
		&p.PaymentTypeID, &methodID, &bankID, &apartmentID, &bookingID,
		&p.Status, &mergedKey, &p.CreatedAt, &p.UpdatedAt,
		&pt.Name, &pt.Type, &pt.Keywords, &pt.Category,
		&pmName, &pmType, &pmKeywords,
		&bkName, &bkType, &bkKeywords,
		&apName, &apKeywords,
		&boApartmentID, &boTenantID, &boStart, &boEnd, &boKeywords, &boStatus,
		&boApName, &boApKeywords,
		&teName, &teEmail, &tePhone,
	); err != nil {
		return Payment{}, err
	}

	if mergedKey.Valid {
		p.MergedPaymentKey = &mergedKey.String
	}
	pt.ID = p.PaymentTypeID
	p.PaymentType = &pt
	if methodID.Valid {
		p.PaymentMethodID = &methodID.Int64
		p.PaymentMethod = &PaymentMethod{ID: methodID.Int64, Name: pmName.String, Type: pmType.String, Keywords: pmKeywords.String}
	}
	if bankID.Valid {
		p.BankID = &bankID.Int64
		p.Bank = &PaymentMethod{ID: bankID.Int64, Name: bkName.String, Type: bkType.String, Keywords: bkKeywords.String}
	}
	if apartmentID.Valid {
		p.ApartmentID = &apartmentID.Int64
		p.Apartment = &Apartment{ID: apartmentID.Int64, Name: apName.String, Keywords: apKeywords.String}
	}
	if bookingID.Valid {
		p.BookingID = &bookingID.Int64
		b := &Booking{
			ID:          bookingID.Int64,
			ApartmentID: boApartmentID.Int64,
			TenantID:    boTenantID.Int64,
			StartDate:   boStart.Time,
			EndDate:     boEnd.Time,
			Keywords:    boKeywords.String,
			Status:      boStatus.String,
		}
		if boApName.Valid {
			b.Apartment = &Apartment{ID: boApartmentID.Int64, Name: boApName.String, Keywords: boApKeywords.String}
		}
		if teName.Valid {
			b.Tenant = &Tenant{ID: boTenantID.Int64, FullName: teName.String, Email: teEmail.String, Phone: tePhone.String}
		}
		p.Booking = b
	}
	return p, nil
}
