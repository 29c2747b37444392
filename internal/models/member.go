package models

// Member is a participant with a wallet.
//
// WalletBalance is only changed by the wallet executor while holding the
// member's row lock, and never drops below zero.
type Member struct {
	// ID is the unique identifier for the member.
	ID string

	// Name is the display name (e.g., "Alice").
	Name string

	// Email is optional contact information.
	Email string

	// PaymentHandle is the member's external payment address (e.g., "alice@okbank").
	// Empty means a default address is derived from the name.
	PaymentHandle string

	// WalletBalance is the in-app wallet balance in minor units.
	WalletBalance int64

	// CreatedAt is the Unix timestamp when the member was created.
	CreatedAt int64
}
