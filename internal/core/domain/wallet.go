package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a user's spendable funds. Balance is the authoritative
// current balance and must equal the sum of the wallet's signed ledger
// amounts at every commit. Version guards optimistic concurrency on
// balance updates.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"userId"`
	Balance   Money     `json:"balance"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ApplyCredit returns the balance after crediting amount.
// The wallet itself is not mutated; persistence owns the write.
func (w *Wallet) ApplyCredit(amount Money) (Money, error) {
	if !amount.IsPositive() {
		return Zero, ErrAmountNotPositive
	}
	return w.Balance.Add(amount)
}

// ApplyDebit returns the balance after debiting amount.
func (w *Wallet) ApplyDebit(amount Money) (Money, error) {
	if !amount.IsPositive() {
		return Zero, ErrAmountNotPositive
	}
	if w.Balance.LessThan(amount) {
		return Zero, ErrInsufficientBalance
	}
	return w.Balance.Subtract(amount)
}

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryTypeCredit EntryType = "CREDIT"
	EntryTypeDebit  EntryType = "DEBIT"
)

// LedgerEntry is an immutable, append-only record of one balance
// mutation. Amount is signed: positive for CREDIT, negative for DEBIT.
// BalanceAfter snapshots the wallet balance immediately after the
// mutation, so the ledger alone can answer point-in-time questions.
type LedgerEntry struct {
	ID            uuid.UUID `json:"id"`
	WalletID      uuid.UUID `json:"walletId"`
	Amount        Money     `json:"amount"`
	Type          EntryType `json:"type"`
	Description   string    `json:"description"`
	TransactionID string    `json:"transactionId"`
	BalanceAfter  Money     `json:"balanceAfter"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SignedAmount returns the ledger amount for the given entry type:
// the amount itself for credits, its negation for debits.
func SignedAmount(entryType EntryType, amount Money) Money {
	if entryType == EntryTypeDebit {
		return amount.Negate()
	}
	return amount
}

// BalanceAt replays entries and returns the balance as of t. Entries
// created at exactly t are included.
func BalanceAt(entries []LedgerEntry, t time.Time) (Money, error) {
	balance := Zero
	for _, e := range entries {
		if e.CreatedAt.After(t) {
			continue
		}
		next, err := balance.Add(e.Amount)
		if err != nil {
			return Zero, err
		}
		balance = next
	}
	return balance, nil
}
