// Package ledger is the settlement engine: it reads balances, plans settlements,
// moves wallet money and drives external payment requests to completion.
//
// Every money movement runs inside a single store transaction. Events are
// emitted only after that transaction commits.
package ledger

import (
	"context"
	"time"

	"github.com/mmynk/splitledger/internal/models"
)

// Directory is the member and group data the engine reads. storage.Store
// satisfies it.
type Directory interface {
	GetMember(ctx context.Context, memberID string) (*models.Member, error)
	GetMembersByIDs(ctx context.Context, ids []string) (map[string]*models.Member, error)
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	SetPaymentHandle(ctx context.Context, memberID, handle string) error
}

func now() int64 { return time.Now().Unix() }
