package ledger

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/events"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// ExpenseInput describes an expense to record or the new state of one being edited.
type ExpenseInput struct {
	GroupID     string
	PayerID     string
	Title       string
	Description string
	Amount      int64
	Policy      models.SplitPolicy

	// Participants are taken in order; the first non-payer absorbs rounding.
	Participants []calculator.Participant
}

// ExpenseBook records, edits and soft-deletes expenses.
type ExpenseBook struct {
	store   storage.Store
	dir     Directory
	emitter events.Emitter
	logger  *slog.Logger
}

// NewExpenseBook creates an ExpenseBook. A nil emitter discards events.
func NewExpenseBook(store storage.Store, emitter events.Emitter, logger *slog.Logger) *ExpenseBook {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpenseBook{store: store, dir: store, emitter: emitter, logger: logger}
}

// groupOf loads the group and checks that actorID belongs to it.
func (b *ExpenseBook) groupOf(ctx context.Context, groupID, actorID string) (*models.Group, error) {
	if groupID == "" {
		return nil, errs.Newf(errs.ErrInvalid, "group id is required")
	}
	group, err := b.dir.GetGroup(ctx, groupID)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	if !group.HasMember(actorID) {
		return nil, errs.Newf(errs.ErrForbidden, "%s is not a member of group %s", actorID, groupID)
	}
	return group, nil
}

// splits validates in against group and computes the split rows.
func splits(group *models.Group, in ExpenseInput) ([]models.ExpenseSplit, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, errs.Newf(errs.ErrInvalid, "title is required")
	}
	if !group.HasMember(in.PayerID) {
		return nil, errs.Newf(errs.ErrInvalid, "payer %s is not a member of the group", in.PayerID)
	}
	for _, p := range in.Participants {
		if p.MemberID != "" && !group.HasMember(p.MemberID) {
			return nil, errs.Newf(errs.ErrInvalid, "participant %s is not a member of the group", p.MemberID)
		}
	}

	shares, err := calculator.ComputeSplits(in.Policy, in.Amount, in.PayerID, in.Participants)
	if err != nil {
		return nil, err
	}
	out := make([]models.ExpenseSplit, len(shares))
	for i, s := range shares {
		out[i] = models.ExpenseSplit{MemberID: s.MemberID, Share: s.Share, Owed: s.Owed}
	}
	return out, nil
}

// Create records an expense paid by in.PayerID (the actor when empty).
func (b *ExpenseBook) Create(ctx context.Context, actorID string, in ExpenseInput) (*models.Expense, error) {
	group, err := b.groupOf(ctx, in.GroupID, actorID)
	if err != nil {
		return nil, err
	}
	if in.PayerID == "" {
		in.PayerID = actorID
	}
	rows, err := splits(group, in)
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		GroupID:     group.ID,
		PayerID:     in.PayerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Amount:      in.Amount,
		Policy:      in.Policy,
		Splits:      rows,
		CreatedAt:   now(),
	}
	if err := b.store.CreateExpense(ctx, expense); err != nil {
		return nil, errs.Unavailable(err)
	}
	b.logger.InfoContext(ctx, "Expense created", "expense_id", expense.ID, "group_id", group.ID, "amount", expense.Amount)

	b.notify(ctx, expense, events.ExpenseAdded{
		ExpenseID: expense.ID,
		GroupID:   expense.GroupID,
		PayerID:   expense.PayerID,
		Title:     expense.Title,
		Amount:    expense.Amount,
	})
	return expense, nil
}

// Update replaces the amount, policy and participants of an expense. Only the
// payer may edit, and only while none of its splits is settled.
func (b *ExpenseBook) Update(ctx context.Context, actorID, expenseID string, in ExpenseInput) (*models.Expense, error) {
	existing, err := b.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	if existing.PayerID != actorID {
		return nil, errs.Newf(errs.ErrForbidden, "only the payer can edit an expense")
	}
	group, err := b.groupOf(ctx, existing.GroupID, actorID)
	if err != nil {
		return nil, err
	}

	in.GroupID = existing.GroupID
	in.PayerID = existing.PayerID
	rows, err := splits(group, in)
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		ID:          existing.ID,
		GroupID:     existing.GroupID,
		PayerID:     existing.PayerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Amount:      in.Amount,
		Policy:      in.Policy,
		Splits:      rows,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   now(),
	}
	if err := b.store.ReplaceExpense(ctx, expense); err != nil {
		return nil, errs.Unavailable(err)
	}
	b.logger.InfoContext(ctx, "Expense updated", "expense_id", expense.ID, "amount", expense.Amount)

	b.notify(ctx, expense, events.ExpenseUpdated{
		ExpenseID: expense.ID,
		GroupID:   expense.GroupID,
		PayerID:   expense.PayerID,
		Title:     expense.Title,
		Amount:    expense.Amount,
	})
	return expense, nil
}

// Delete soft-deletes an expense so balances no longer count it.
func (b *ExpenseBook) Delete(ctx context.Context, actorID, expenseID string) error {
	existing, err := b.store.GetExpense(ctx, expenseID)
	if err != nil {
		return errs.Unavailable(err)
	}
	if existing.PayerID != actorID {
		return errs.Newf(errs.ErrForbidden, "only the payer can delete an expense")
	}
	if err := b.store.SoftDeleteExpense(ctx, expenseID, now()); err != nil {
		return errs.Unavailable(err)
	}
	b.logger.InfoContext(ctx, "Expense deleted", "expense_id", expenseID)

	b.notify(ctx, existing, events.ExpenseDeleted{
		ExpenseID: existing.ID,
		GroupID:   existing.GroupID,
		PayerID:   existing.PayerID,
		Title:     existing.Title,
	})
	return nil
}

// List returns the group's expenses, newest first.
func (b *ExpenseBook) List(ctx context.Context, actorID, groupID string) ([]*models.Expense, error) {
	if _, err := b.groupOf(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	expenses, err := b.store.ListExpensesByGroup(ctx, groupID)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	return expenses, nil
}

// notify sends ev to the group and to every participant other than the payer.
func (b *ExpenseBook) notify(ctx context.Context, expense *models.Expense, ev events.Event) {
	b.emitter.Emit(ctx, events.Group(expense.GroupID), ev)
	for _, s := range expense.Splits {
		if s.MemberID != expense.PayerID {
			b.emitter.Emit(ctx, events.Member(s.MemberID), ev)
		}
	}
}
