// Package models defines the domain records of the ledger.
//
// # Records
//
//   - Member: a person with a wallet balance and an optional external payment handle
//   - Group: a set of members sharing expenses
//   - Expense / ExpenseSplit: who fronted money and who owes what
//   - WalletTransaction: one attempt to move wallet money, kept forever for audit
//   - PaymentRequest: an out-of-band payment moving through its approval workflow
//   - Notification: a persisted, member-facing copy of an engine event
//
// # Conventions
//
//  1. Amounts are int64 minor currency units (cents, paise). No floats.
//  2. Timestamps are Unix seconds; zero means "not set".
//  3. Relationships are expressed with ID strings, never pointers.
package models
