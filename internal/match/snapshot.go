package match

import (
	"fmt"

	"github.com/brickellbay/paysync/internal/database/repository"
)

// Snapshot is the wire projection of a ledger payment. Amount is a fixed
// two-decimal string so clients never see float noise.
type Snapshot struct {
	ID                int64   `json:"id"`
	Amount            string  `json:"amount"`
	PaymentDate       string  `json:"payment_date"`
	Notes             string  `json:"notes"`
	Keywords          string  `json:"keywords"`
	PaymentType       *int64  `json:"payment_type"`
	PaymentTypeName   string  `json:"payment_type_name"`
	Direction         string  `json:"payment_type_type"`
	PaymentMethod     *int64  `json:"payment_method"`
	PaymentMethodName string  `json:"payment_method_name"`
	Bank              *int64  `json:"bank"`
	BankName          string  `json:"bank_name"`
	Apartment         *int64  `json:"apartment"`
	ApartmentName     string  `json:"apartment_name"`
	Booking           *int64  `json:"booking"`
	TenantName        string  `json:"tenant_name"`
	PaymentStatus     string  `json:"payment_status"`
	MergedPaymentKey  *string `json:"merged_payment_key"`
}

// SnapshotOf flattens a payment and its joined relations into a Snapshot.
func SnapshotOf(p repository.Payment) Snapshot {
	s := Snapshot{
		ID:               p.ID,
		Amount:           fmt.Sprintf("%.2f", p.Amount),
		PaymentDate:      p.Date.Format("2006-01-02"),
		Notes:            p.Notes,
		Keywords:         p.Keywords,
		PaymentStatus:    p.Status,
		MergedPaymentKey: p.MergedPaymentKey,
	}
	if p.PaymentType != nil {
		id := p.PaymentType.ID
		s.PaymentType = &id
		s.PaymentTypeName = fmt.Sprintf("%s (%s)", p.PaymentType.Name, p.PaymentType.Type)
		s.Direction = p.PaymentType.Type
	}
	if p.PaymentMethod != nil {
		id := p.PaymentMethod.ID
		s.PaymentMethod = &id
		s.PaymentMethodName = p.PaymentMethod.Name
	}
	if p.Bank != nil {
		id := p.Bank.ID
		s.Bank = &id
		s.BankName = p.Bank.Name
	}
	if p.Apartment != nil {
		id := p.Apartment.ID
		s.Apartment = &id
	}
	s.ApartmentName = p.ApartmentName()
	if p.Booking != nil {
		id := p.Booking.ID
		s.Booking = &id
	}
	s.TenantName = p.TenantName()
	return s
}
