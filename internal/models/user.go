package models

import "time"

const (
	RoleAdmin  = "admin"
	RoleMentor = "mentor"
)

type User struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	FullName          string    `json:"full_name"`
	Role              string    `json:"role"`
	BankName          *string   `json:"bank_name"`
	AccountNumber     *string   `json:"account_number"`
	AccountHolderName *string   `json:"account_holder_name"`
	UpiID             *string   `json:"upi_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HasCompleteBankDetails reports whether the user can receive payouts.
// All three fields must be present and non-empty before a payment may be
// created for this mentor.
func (u *User) HasCompleteBankDetails() bool {
	return u != nil &&
		u.BankName != nil && *u.BankName != "" &&
		u.AccountNumber != nil && *u.AccountNumber != "" &&
		u.AccountHolderName != nil && *u.AccountHolderName != ""
}

// Actor identifies who is performing an operation. It is threaded explicitly
// through service calls instead of being read from an ambient request context.
type Actor struct {
	ID   int64
	Role string
}

func (a Actor) HasRole(role string) bool {
	return a.Role == role
}
