package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

const demoGroupID = "demo"

var demoMembers = []*models.Member{
	{ID: "alice", Name: "Alice", Email: "alice@example.com"},
	{ID: "bob", Name: "Bob", Email: "bob@example.com"},
	{ID: "carol", Name: "Carol", Email: "carol@example.com", PaymentHandle: "carol@okbank"},
}

// seedDemo creates the demo members and group. Running it twice is harmless.
func seedDemo(ctx context.Context, store storage.Store) error {
	ids := make([]string, 0, len(demoMembers))
	for _, m := range demoMembers {
		member := *m
		if err := store.CreateMember(ctx, &member); err != nil && !errors.Is(err, errs.ErrConflict) {
			return err
		}
		ids = append(ids, m.ID)
	}

	if _, err := store.GetGroup(ctx, demoGroupID); err == nil {
		return nil
	} else if !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if err := store.CreateGroup(ctx, &models.Group{ID: demoGroupID, Name: "Demo", MemberIDs: ids}); err != nil {
		return err
	}
	slog.Info("Seeded demo data", "group_id", demoGroupID, "members", ids)
	return nil
}
