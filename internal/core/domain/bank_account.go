package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BankAccount is a payout destination owned by one wallet.
// The account number is stored encrypted; only the masked form is exposed.
type BankAccount struct {
	ID                  uuid.UUID  `json:"id"`
	WalletID            uuid.UUID  `json:"wallet_id"`
	AccountName         string     `json:"account_name"`
	BankName            string     `json:"bank_name"`
	BankCode            string     `json:"bank_code"`
	AccountNumberEnc    string     `json:"-"`
	AccountNumberMasked string     `json:"account_number"`
	Currency            string     `json:"currency"`
	IsDefault           bool       `json:"is_default"`
	IsVerified          bool       `json:"is_verified"`
	VerifiedAt          *time.Time `json:"verified_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// BankAccountUpdate lists the fields a merchant may change after creation.
// Currency cannot be changed.
type BankAccountUpdate struct {
	AccountName   *string
	BankName      *string
	BankCode      *string
	AccountNumber *string
}

// IsEmpty reports whether the update changes nothing.
func (u BankAccountUpdate) IsEmpty() bool {
	return u.AccountName == nil && u.BankName == nil && u.BankCode == nil && u.AccountNumber == nil
}

// ResetsVerification reports whether the update touches routing details.
func (u BankAccountUpdate) ResetsVerification() bool {
	return u.BankCode != nil || u.AccountNumber != nil
}

// MaskAccountNumber keeps the last four characters of an account number.
func MaskAccountNumber(number string) string {
	n := strings.TrimSpace(number)
	if len(n) <= 4 {
		return strings.Repeat("*", len(n))
	}
	return strings.Repeat("*", len(n)-4) + n[len(n)-4:]
}

// Destination is a decrypted bank account handed to a gateway adapter.
type Destination struct {
	AccountName   string
	BankName      string
	BankCode      string
	AccountNumber string
	Currency      string
	Email         string
}
