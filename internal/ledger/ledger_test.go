package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/events"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

type emitted struct {
	target events.Target
	event  events.Event
}

type recordingEmitter struct {
	mu   sync.Mutex
	sent []emitted
}

func (r *recordingEmitter) Emit(_ context.Context, target events.Target, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, emitted{target: target, event: ev})
}

func (r *recordingEmitter) count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.sent {
		if e.event.Type() == t {
			n++
		}
	}
	return n
}

func (r *recordingEmitter) targets(t events.Type) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.sent {
		if e.event.Type() == t {
			out = append(out, e.target.String())
		}
	}
	return out
}

type engine struct {
	store    *sqlite.SQLiteStore
	emitter  *recordingEmitter
	agg      *Aggregator
	exec     *Executor
	workflow *Workflow
	book     *ExpenseBook
}

func newEngine(t *testing.T, policy Policy) *engine {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "splitledger-ledger-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	em := &recordingEmitter{}
	return &engine{
		store:    store,
		emitter:  em,
		agg:      NewAggregator(store),
		exec:     NewExecutor(store, em, nil),
		workflow: NewWorkflow(store, em, policy, nil),
		book:     NewExpenseBook(store, em, nil),
	}
}

// seedDinner creates A (Alice), B (Bob), C (Carol) in group g1 and records the
// 10000 dinner paid by A and split equally.
func (e *engine) seedDinner(t *testing.T) *models.Expense {
	t.Helper()
	ctx := context.Background()
	for _, m := range []*models.Member{
		{ID: "A", Name: "Alice"},
		{ID: "B", Name: "Bob"},
		{ID: "C", Name: "Carol"},
	} {
		if err := e.store.CreateMember(ctx, m); err != nil {
			t.Fatalf("CreateMember(%s) failed: %v", m.ID, err)
		}
	}
	if err := e.store.CreateGroup(ctx, &models.Group{ID: "g1", Name: "Dinner", MemberIDs: []string{"A", "B", "C"}}); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	expense, err := e.book.Create(ctx, "A", ExpenseInput{
		GroupID: "g1",
		PayerID: "A",
		Title:   "Dinner",
		Amount:  10000,
		Policy:  models.SplitEqual,
		Participants: []calculator.Participant{
			{MemberID: "A"}, {MemberID: "B"}, {MemberID: "C"},
		},
	})
	if err != nil {
		t.Fatalf("Create expense failed: %v", err)
	}
	return expense
}

func (e *engine) balance(t *testing.T, id string) int64 {
	t.Helper()
	m, err := e.store.GetMember(context.Background(), id)
	if err != nil {
		t.Fatalf("GetMember(%s) failed: %v", id, err)
	}
	return m.WalletBalance
}

func (e *engine) deposit(t *testing.T, id string, amount int64) {
	t.Helper()
	if _, err := e.exec.Deposit(context.Background(), id, amount, ""); err != nil {
		t.Fatalf("Deposit(%s) failed: %v", id, err)
	}
}

func nets(balances []calculator.MemberBalance) map[string]int64 {
	out := make(map[string]int64, len(balances))
	for _, b := range balances {
		out[b.MemberID] = b.Net
	}
	return out
}

func TestDinnerScenario(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	expense := e.seedDinner(t)
	ctx := context.Background()
	scope := storage.GroupScope("g1")

	wantOwed := map[string]int64{"A": 0, "B": 3334, "C": 3333}
	for _, s := range expense.Splits {
		if s.Owed != wantOwed[s.MemberID] {
			t.Errorf("owed for %s: expected %d, got %d", s.MemberID, wantOwed[s.MemberID], s.Owed)
		}
	}
	if got := e.emitter.targets(events.TypeExpenseAdded); strings.Join(got, ",") != "group:g1,member:B,member:C" {
		t.Errorf("ExpenseAdded targets: got %v", got)
	}

	balances, err := e.agg.NetBalances(ctx, scope)
	if err != nil {
		t.Fatalf("NetBalances failed: %v", err)
	}
	got := nets(balances)
	want := map[string]int64{"A": 6667, "B": -3334, "C": -3333}
	for id, net := range want {
		if got[id] != net {
			t.Errorf("net for %s: expected %d, got %d", id, net, got[id])
		}
	}
	if balances[0].MemberID != "A" || balances[0].OwedToThem != 6667 || balances[0].TheyOwe != 0 {
		t.Errorf("unexpected balance for A: %+v", balances[0])
	}

	plan, err := e.agg.PlanSettlements(ctx, scope)
	if err != nil {
		t.Fatalf("PlanSettlements failed: %v", err)
	}
	wantPlan := []calculator.Transfer{{From: "B", To: "A", Amount: 3334}, {From: "C", To: "A", Amount: 3333}}
	if len(plan) != len(wantPlan) {
		t.Fatalf("plan: expected %v, got %v", wantPlan, plan)
	}
	for i := range wantPlan {
		if plan[i] != wantPlan[i] {
			t.Errorf("plan[%d]: expected %+v, got %+v", i, wantPlan[i], plan[i])
		}
	}

	e.deposit(t, "B", 5000)
	e.deposit(t, "C", 5000)
	for i, tr := range plan {
		wt, err := e.exec.Transfer(ctx, TransferRequest{
			FromMemberID:   tr.From,
			ToMemberID:     tr.To,
			Amount:         tr.Amount,
			GroupID:        "g1",
			IdempotencyKey: fmt.Sprintf("plan-%d", i),
		})
		if err != nil {
			t.Fatalf("Transfer %+v failed: %v", tr, err)
		}
		if wt.Status != models.TxSuccess || wt.SplitsSettled != 1 {
			t.Errorf("unexpected transaction: %+v", wt)
		}
	}

	if b := e.balance(t, "A"); b != 6667 {
		t.Errorf("A balance: expected 6667, got %d", b)
	}
	if b := e.balance(t, "B"); b != 1666 {
		t.Errorf("B balance: expected 1666, got %d", b)
	}

	balances, err = e.agg.NetBalances(ctx, scope)
	if err != nil {
		t.Fatalf("NetBalances failed: %v", err)
	}
	for _, b := range balances {
		if b.Net != 0 || b.OwedToThem != 0 || b.TheyOwe != 0 {
			t.Errorf("expected settled balance, got %+v", b)
		}
	}
	if len(balances) != 3 {
		t.Errorf("expected every member in scope, got %d", len(balances))
	}

	plan, err = e.agg.PlanSettlements(ctx, scope)
	if err != nil {
		t.Fatalf("PlanSettlements failed: %v", err)
	}
	if len(plan) != 0 {
		t.Errorf("expected empty plan after settlement, got %v", plan)
	}

	// PaymentSettled goes to the group and both parties of each transfer.
	if n := e.emitter.count(events.TypePaymentSettled); n != 6 {
		t.Errorf("PaymentSettled events: expected 6, got %d", n)
	}
}

func TestNetBalances_Scope(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	ctx := context.Background()

	if err := e.store.CreateMember(ctx, &models.Member{ID: "D", Name: "Dan"}); err != nil {
		t.Fatalf("CreateMember failed: %v", err)
	}
	if err := e.store.CreateGroup(ctx, &models.Group{ID: "g2", Name: "Trip", MemberIDs: []string{"B", "D"}}); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	_, err := e.book.Create(ctx, "D", ExpenseInput{
		GroupID: "g2", Title: "Taxi", Amount: 1000, Policy: models.SplitExact,
		Participants: []calculator.Participant{{MemberID: "D", Amount: 400}, {MemberID: "B", Amount: 600}},
	})
	if err != nil {
		t.Fatalf("Create expense failed: %v", err)
	}

	t.Run("member scope spans every group of the member", func(t *testing.T) {
		balances, err := e.agg.NetBalances(ctx, storage.MemberScope("B"))
		if err != nil {
			t.Fatalf("NetBalances failed: %v", err)
		}
		var ids []string
		for _, b := range balances {
			ids = append(ids, b.MemberID)
		}
		if strings.Join(ids, ",") != "A,B,C,D" {
			t.Errorf("members: expected A,B,C,D, got %v", ids)
		}
		got := nets(balances)
		if got["B"] != -3934 || got["D"] != 600 {
			t.Errorf("unexpected nets: %v", got)
		}
		var sum int64
		for _, n := range got {
			sum += n
		}
		if sum != 0 {
			t.Errorf("nets must sum to zero, got %d", sum)
		}
	})

	t.Run("group scope ignores other groups", func(t *testing.T) {
		balances, err := e.agg.NetBalances(ctx, storage.GroupScope("g2"))
		if err != nil {
			t.Fatalf("NetBalances failed: %v", err)
		}
		got := nets(balances)
		if len(got) != 2 || got["B"] != -600 || got["D"] != 600 {
			t.Errorf("unexpected nets: %v", got)
		}
	})

	t.Run("invalid scope", func(t *testing.T) {
		for _, scope := range []storage.Scope{{}, {GroupID: "g1", MemberID: "A"}} {
			if _, err := e.agg.NetBalances(ctx, scope); !errors.Is(err, errs.ErrInvalid) {
				t.Errorf("scope %+v: expected invalid, got %v", scope, err)
			}
		}
	})

	t.Run("unknown group", func(t *testing.T) {
		if _, err := e.agg.NetBalances(ctx, storage.GroupScope("nope")); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestTransfer_Validation(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  TransferRequest
		want error
	}{
		{"zero amount", TransferRequest{FromMemberID: "B", ToMemberID: "A"}, errs.ErrInvalid},
		{"negative amount", TransferRequest{FromMemberID: "B", ToMemberID: "A", Amount: -5}, errs.ErrInvalid},
		{"self transfer", TransferRequest{FromMemberID: "A", ToMemberID: "A", Amount: 5}, errs.ErrInvalid},
		{"missing sender", TransferRequest{ToMemberID: "A", Amount: 5}, errs.ErrInvalid},
		{"unknown recipient", TransferRequest{FromMemberID: "A", ToMemberID: "Z", Amount: 5}, errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wt, err := e.exec.Transfer(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if wt != nil {
				t.Errorf("expected no transaction, got %+v", wt)
			}
		})
	}

	history, err := e.store.ListTransactions(ctx, "A", "", 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("rejected transfers must not be recorded, got %d", len(history))
	}
}

// txCountingStore counts store transactions opened through it.
type txCountingStore struct {
	storage.Store
	mu  sync.Mutex
	txs int
}

func (s *txCountingStore) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	s.txs++
	s.mu.Unlock()
	return s.Store.WithTx(ctx, fn)
}

func TestExecutor_UnknownMemberRejectedBeforeLocking(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	ctx := context.Background()

	store := &txCountingStore{Store: e.store}
	exec := NewExecutor(store, nil, nil)

	if _, err := exec.Transfer(ctx, TransferRequest{FromMemberID: "A", ToMemberID: "Z", Amount: 5}); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("transfer: expected not found, got %v", err)
	}
	if _, err := exec.Transfer(ctx, TransferRequest{FromMemberID: "Z", ToMemberID: "A", Amount: 5}); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("transfer from unknown: expected not found, got %v", err)
	}
	if _, err := exec.Deposit(ctx, "Z", 100, ""); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("deposit: expected not found, got %v", err)
	}
	if store.txs != 0 {
		t.Errorf("expected no transaction to be opened, got %d", store.txs)
	}

	if _, err := exec.Deposit(ctx, "A", 100, ""); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if store.txs != 1 {
		t.Errorf("expected one transaction, got %d", store.txs)
	}
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	e.deposit(t, "B", 1000)
	ctx := context.Background()

	req := TransferRequest{FromMemberID: "B", ToMemberID: "A", Amount: 3334, GroupID: "g1", IdempotencyKey: "k1"}
	wt, err := e.exec.Transfer(ctx, req)
	if !errors.Is(err, errs.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if wt == nil || wt.Status != models.TxFailed {
		t.Fatalf("expected failed transaction, got %+v", wt)
	}
	if wt.FromBalanceBefore != 1000 || wt.FromBalanceAfter != 1000 || wt.ToBalanceAfter != 0 {
		t.Errorf("after-balances must equal before-balances: %+v", wt)
	}

	if b := e.balance(t, "B"); b != 1000 {
		t.Errorf("B balance: expected 1000, got %d", b)
	}
	if b := e.balance(t, "A"); b != 0 {
		t.Errorf("A balance: expected 0, got %d", b)
	}

	history, err := e.store.ListTransactions(ctx, "B", "g1", 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(history) != 1 || history[0].Status != models.TxFailed || history[0].FailureReason == "" {
		t.Fatalf("expected exactly one failed record, got %+v", history)
	}

	balances, err := e.agg.NetBalances(ctx, storage.GroupScope("g1"))
	if err != nil {
		t.Fatalf("NetBalances failed: %v", err)
	}
	if nets(balances)["B"] != -3334 {
		t.Errorf("splits must stay open after a failed transfer")
	}

	// Replaying the same key returns the same failure without a second record.
	again, err := e.exec.Transfer(ctx, req)
	if !errors.Is(err, errs.ErrInsufficientFunds) || again.ID != wt.ID {
		t.Errorf("replay: expected same failed transaction, got %+v, %v", again, err)
	}
	if n := e.emitter.count(events.TypePaymentSettled); n != 0 {
		t.Errorf("failed transfers must not emit, got %d", n)
	}
}

func TestTransfer_Idempotent(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	e.deposit(t, "B", 5000)
	ctx := context.Background()

	req := TransferRequest{FromMemberID: "B", ToMemberID: "A", Amount: 3334, GroupID: "g1", IdempotencyKey: "settle-1"}
	first, err := e.exec.Transfer(ctx, req)
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	second, err := e.exec.Transfer(ctx, req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if second.ID != first.ID || second.Status != models.TxSuccess {
		t.Errorf("replay returned a different transaction: %+v vs %+v", second, first)
	}
	if b := e.balance(t, "B"); b != 5000-3334 {
		t.Errorf("B balance: expected %d, got %d", 5000-3334, b)
	}
	if n := e.emitter.count(events.TypePaymentSettled); n != 3 {
		t.Errorf("replay must not emit again, got %d events", n)
	}

	t.Run("reused key with different amount conflicts", func(t *testing.T) {
		other := req
		other.Amount = 1
		if _, err := e.exec.Transfer(ctx, other); !errors.Is(err, errs.ErrConflict) {
			t.Errorf("expected conflict, got %v", err)
		}
	})

	t.Run("same key from another sender is independent", func(t *testing.T) {
		e.deposit(t, "C", 100)
		wt, err := e.exec.Transfer(ctx, TransferRequest{FromMemberID: "C", ToMemberID: "A", Amount: 100, IdempotencyKey: "settle-1"})
		if err != nil {
			t.Fatalf("Transfer failed: %v", err)
		}
		if wt.ID == first.ID {
			t.Error("expected a new transaction")
		}
	})
}

func TestDeposit(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	ctx := context.Background()

	wt, err := e.exec.Deposit(ctx, "B", 2500, "topup-1")
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if wt.Kind != models.KindDeposit || wt.FromMemberID != "" || wt.ToBalanceAfter != 2500 {
		t.Errorf("unexpected deposit: %+v", wt)
	}
	again, err := e.exec.Deposit(ctx, "B", 2500, "topup-1")
	if err != nil || again.ID != wt.ID {
		t.Errorf("replay: expected %s, got %+v, %v", wt.ID, again, err)
	}
	if _, err := e.exec.Deposit(ctx, "C", 700, "topup-1"); err != nil {
		t.Errorf("same key for another member should succeed: %v", err)
	}
	if b := e.balance(t, "B"); b != 2500 {
		t.Errorf("B balance: expected 2500, got %d", b)
	}
	if _, err := e.exec.Deposit(ctx, "B", 0, ""); !errors.Is(err, errs.ErrInvalid) {
		t.Errorf("expected invalid, got %v", err)
	}
	if _, err := e.exec.Deposit(ctx, "Z", 10, ""); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTransfer_ConcurrentOppositeDirections(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	e.deposit(t, "A", 1000)
	e.deposit(t, "B", 1000)
	ctx := context.Background()

	const rounds = 25
	var wg sync.WaitGroup
	errCh := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := e.exec.Transfer(ctx, TransferRequest{FromMemberID: "A", ToMemberID: "B", Amount: 10}); err != nil {
				errCh <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := e.exec.Transfer(ctx, TransferRequest{FromMemberID: "B", ToMemberID: "A", Amount: 10}); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("transfer failed: %v", err)
	}

	a, b := e.balance(t, "A"), e.balance(t, "B")
	if a+b != 2000 {
		t.Errorf("money not conserved: A=%d B=%d", a, b)
	}
	if a != 1000 || b != 1000 {
		t.Errorf("expected balances to return to 1000, got A=%d B=%d", a, b)
	}
}

func TestWorkflow_HappyPath(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	ctx := context.Background()

	req, err := e.workflow.Create(ctx, NewPayment{PayerID: "B", ReceiverID: "A", Amount: 3334, GroupID: "g1", Note: "dinner"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if req.Status != models.PaymentCreated || req.PaymentAddress != "alice@upi" {
		t.Errorf("unexpected request: %+v", req)
	}
	if want := "upi://pay?am=33.34&cu=INR&pa=alice%40upi&pn=Alice&tn=dinner"; req.PaymentLink != want {
		t.Errorf("link: expected %s, got %s", want, req.PaymentLink)
	}

	incoming, err := e.workflow.ListIncoming(ctx, "A")
	if err != nil || len(incoming) != 1 {
		t.Fatalf("ListIncoming: expected 1, got %d, %v", len(incoming), err)
	}

	req, err = e.workflow.Confirm(ctx, req.ID, "B")
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if req.Status != models.PaymentPayerConfirmed || req.PayerConfirmedAt == 0 || req.Note != "dinner" {
		t.Errorf("unexpected request after confirm: %+v", req)
	}

	req, err = e.workflow.Approve(ctx, req.ID, "A")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if req.Status != models.PaymentApproved || req.ApprovedAt == 0 {
		t.Errorf("unexpected request after approve: %+v", req)
	}

	balances, err := e.agg.NetBalances(ctx, storage.GroupScope("g1"))
	if err != nil {
		t.Fatalf("NetBalances failed: %v", err)
	}
	got := nets(balances)
	if got["B"] != 0 || got["A"] != 3333 || got["C"] != -3333 {
		t.Errorf("unexpected nets after approval: %v", got)
	}
	if b := e.balance(t, "A"); b != 0 {
		t.Errorf("external payments must not touch wallets, A=%d", b)
	}

	for _, typ := range []events.Type{events.TypePaymentRequestCreated, events.TypePaymentPayerConfirmed} {
		if got := e.emitter.targets(typ); len(got) != 1 || got[0] != "member:A" {
			t.Errorf("%s targets: got %v", typ, got)
		}
	}
	if got := e.emitter.targets(events.TypePaymentApproved); len(got) != 1 || got[0] != "member:B" {
		t.Errorf("approved targets: got %v", got)
	}

	outgoing, err := e.workflow.ListOutgoing(ctx, "B", 0)
	if err != nil || len(outgoing) != 1 || outgoing[0].Status != models.PaymentApproved {
		t.Errorf("ListOutgoing: got %+v, %v", outgoing, err)
	}
}

func TestWorkflow_Guards(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	ctx := context.Background()

	create := func(t *testing.T) *models.PaymentRequest {
		t.Helper()
		req, err := e.workflow.Create(ctx, NewPayment{PayerID: "B", ReceiverID: "A", Amount: 100, GroupID: "g1"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		return req
	}

	t.Run("create validation", func(t *testing.T) {
		cases := []struct {
			p    NewPayment
			want error
		}{
			{NewPayment{PayerID: "B", ReceiverID: "B", Amount: 1}, errs.ErrInvalid},
			{NewPayment{PayerID: "B", ReceiverID: "A"}, errs.ErrInvalid},
			{NewPayment{PayerID: "B", ReceiverID: "Z", Amount: 1}, errs.ErrNotFound},
		}
		for _, c := range cases {
			if _, err := e.workflow.Create(ctx, c.p); !errors.Is(err, c.want) {
				t.Errorf("%+v: expected %v, got %v", c.p, c.want, err)
			}
		}
	})

	t.Run("only the payer confirms", func(t *testing.T) {
		req := create(t)
		if _, err := e.workflow.Confirm(ctx, req.ID, "A"); !errors.Is(err, errs.ErrForbidden) {
			t.Errorf("expected forbidden, got %v", err)
		}
	})

	t.Run("only the receiver approves", func(t *testing.T) {
		req := create(t)
		if _, err := e.workflow.Approve(ctx, req.ID, "B"); !errors.Is(err, errs.ErrForbidden) {
			t.Errorf("expected forbidden, got %v", err)
		}
		got, err := e.store.GetPaymentRequest(ctx, req.ID)
		if err != nil || got.Status != models.PaymentCreated {
			t.Errorf("state must not change: %+v, %v", got, err)
		}
	})

	t.Run("confirm twice names the current state", func(t *testing.T) {
		req := create(t)
		if _, err := e.workflow.Confirm(ctx, req.ID, "B"); err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
		_, err := e.workflow.Confirm(ctx, req.ID, "B")
		if !errors.Is(err, errs.ErrInvalidTransition) || !strings.Contains(err.Error(), "payer_confirmed") {
			t.Errorf("expected invalid transition naming payer_confirmed, got %v", err)
		}
	})

	t.Run("reject after confirm is refused by default", func(t *testing.T) {
		req := create(t)
		if _, err := e.workflow.Confirm(ctx, req.ID, "B"); err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
		if _, err := e.workflow.Reject(ctx, req.ID, "A"); !errors.Is(err, errs.ErrInvalidTransition) {
			t.Errorf("expected invalid transition, got %v", err)
		}
	})

	t.Run("approve straight from created", func(t *testing.T) {
		req := create(t)
		if _, err := e.workflow.Approve(ctx, req.ID, "A"); err != nil {
			t.Errorf("Approve failed: %v", err)
		}
	})

	t.Run("unknown request", func(t *testing.T) {
		if _, err := e.workflow.Confirm(ctx, "missing", "B"); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestWorkflow_RejectAfterConfirmPolicy(t *testing.T) {
	e := newEngine(t, Policy{AllowRejectAfterConfirm: true})
	e.seedDinner(t)
	ctx := context.Background()

	req, err := e.workflow.Create(ctx, NewPayment{PayerID: "B", ReceiverID: "A", Amount: 100})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := e.workflow.Confirm(ctx, req.ID, "B"); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	req, err = e.workflow.Reject(ctx, req.ID, "A")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if req.Status != models.PaymentRejected || req.RejectedAt == 0 {
		t.Errorf("unexpected request: %+v", req)
	}
	if got := e.emitter.targets(events.TypePaymentRejected); len(got) != 1 || got[0] != "member:B" {
		t.Errorf("rejected targets: got %v", got)
	}
}

func TestWorkflow_TerminalStatesAreFinal(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	ctx := context.Background()

	approved, err := e.workflow.Create(ctx, NewPayment{PayerID: "B", ReceiverID: "A", Amount: 100, GroupID: "g1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := e.workflow.Approve(ctx, approved.ID, "A"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	rejected, err := e.workflow.Create(ctx, NewPayment{PayerID: "C", ReceiverID: "A", Amount: 100, GroupID: "g1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := e.workflow.Reject(ctx, rejected.ID, "A"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	attempts := []struct {
		name string
		run  func(id, actor string) (*models.PaymentRequest, error)
	}{
		{"confirm", func(id, actor string) (*models.PaymentRequest, error) { return e.workflow.Confirm(ctx, id, actor) }},
		{"approve", func(id, actor string) (*models.PaymentRequest, error) { return e.workflow.Approve(ctx, id, actor) }},
		{"reject", func(id, actor string) (*models.PaymentRequest, error) { return e.workflow.Reject(ctx, id, actor) }},
	}
	for _, req := range []*models.PaymentRequest{approved, rejected} {
		before, err := e.store.GetPaymentRequest(ctx, req.ID)
		if err != nil {
			t.Fatalf("GetPaymentRequest failed: %v", err)
		}
		for _, a := range attempts {
			// Any actor, including a stranger, gets InvalidTransition.
			for _, actor := range []string{req.PayerID, req.ReceiverID, "C"} {
				if _, err := a.run(req.ID, actor); !errors.Is(err, errs.ErrInvalidTransition) {
					t.Errorf("%s %s by %s: expected invalid transition, got %v", before.Status, a.name, actor, err)
				}
			}
		}
		after, err := e.store.GetPaymentRequest(ctx, req.ID)
		if err != nil {
			t.Fatalf("GetPaymentRequest failed: %v", err)
		}
		if *after != *before {
			t.Errorf("terminal request changed: %+v -> %+v", before, after)
		}
	}
}

func TestWorkflow_ConcurrentApproval(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	ctx := context.Background()

	req, err := e.workflow.Create(ctx, NewPayment{PayerID: "B", ReceiverID: "A", Amount: 3334, GroupID: "g1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = e.workflow.Approve(ctx, req.ID, "A")
		}(i)
	}
	wg.Wait()

	var ok, invalid int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errs.ErrInvalidTransition):
			invalid++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || invalid != 1 {
		t.Errorf("expected one approval and one invalid transition, got %d and %d", ok, invalid)
	}
	if n := e.emitter.count(events.TypePaymentApproved); n != 1 {
		t.Errorf("expected one approval event, got %d", n)
	}
}

func TestWorkflow_SetPaymentHandle(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	ctx := context.Background()

	for _, bad := range []string{"", "alice", "@bank", "alice@"} {
		if err := e.workflow.SetPaymentHandle(ctx, "A", bad); !errors.Is(err, errs.ErrInvalid) {
			t.Errorf("handle %q: expected invalid, got %v", bad, err)
		}
	}
	if err := e.workflow.SetPaymentHandle(ctx, "A", "alice@okbank"); err != nil {
		t.Fatalf("SetPaymentHandle failed: %v", err)
	}
	req, err := e.workflow.Create(ctx, NewPayment{PayerID: "B", ReceiverID: "A", Amount: 100})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if req.PaymentAddress != "alice@okbank" {
		t.Errorf("address: expected alice@okbank, got %s", req.PaymentAddress)
	}
}

func TestWorkflow_ListIncomingReturnsEveryOpenRequest(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	ctx := context.Background()

	const open = 60
	for i := 0; i < open; i++ {
		if _, err := e.workflow.Create(ctx, NewPayment{PayerID: "B", ReceiverID: "A", Amount: int64(100 + i)}); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}

	incoming, err := e.workflow.ListIncoming(ctx, "A")
	if err != nil {
		t.Fatalf("ListIncoming failed: %v", err)
	}
	if len(incoming) != open {
		t.Errorf("expected %d open requests, got %d", open, len(incoming))
	}

	outgoing, err := e.workflow.ListOutgoing(ctx, "B", 0)
	if err != nil {
		t.Fatalf("ListOutgoing failed: %v", err)
	}
	if len(outgoing) != 50 {
		t.Errorf("outgoing default page: expected 50, got %d", len(outgoing))
	}
}

func TestWorkflow_Get(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	e.seedDinner(t)
	ctx := context.Background()

	req, err := e.workflow.Create(ctx, NewPayment{PayerID: "B", ReceiverID: "A", Amount: 3334})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, party := range []string{"A", "B"} {
		got, err := e.workflow.Get(ctx, req.ID, party)
		if err != nil {
			t.Fatalf("Get as %s failed: %v", party, err)
		}
		if got.ID != req.ID || got.Amount != 3334 {
			t.Errorf("Get as %s: unexpected request %+v", party, got)
		}
	}
	if _, err := e.workflow.Get(ctx, req.ID, "C"); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("outsider: expected forbidden, got %v", err)
	}
	if _, err := e.workflow.Get(ctx, "missing", "A"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("missing: expected not found, got %v", err)
	}
}

func TestExpenseBook(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	expense := e.seedDinner(t)
	ctx := context.Background()

	t.Run("non-member cannot record expenses", func(t *testing.T) {
		if err := e.store.CreateMember(ctx, &models.Member{ID: "X", Name: "Xavier"}); err != nil {
			t.Fatalf("CreateMember failed: %v", err)
		}
		_, err := e.book.Create(ctx, "X", ExpenseInput{
			GroupID: "g1", Title: "Snacks", Amount: 100, Policy: models.SplitEqual,
			Participants: []calculator.Participant{{MemberID: "A"}},
		})
		if !errors.Is(err, errs.ErrForbidden) {
			t.Errorf("expected forbidden, got %v", err)
		}
	})

	t.Run("participants must belong to the group", func(t *testing.T) {
		_, err := e.book.Create(ctx, "A", ExpenseInput{
			GroupID: "g1", Title: "Snacks", Amount: 100, Policy: models.SplitEqual,
			Participants: []calculator.Participant{{MemberID: "A"}, {MemberID: "X"}},
		})
		if !errors.Is(err, errs.ErrInvalid) {
			t.Errorf("expected invalid, got %v", err)
		}
	})

	t.Run("percentage split", func(t *testing.T) {
		got, err := e.book.Create(ctx, "B", ExpenseInput{
			GroupID: "g1", Title: "Cab", Amount: 999, Policy: models.SplitPercentage,
			Participants: []calculator.Participant{{MemberID: "B", BasisPoints: 5000}, {MemberID: "C", BasisPoints: 5000}},
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if got.PayerID != "B" || got.Splits[0].Owed != 0 || got.Splits[1].Owed != 500 {
			t.Errorf("unexpected splits: %+v", got.Splits)
		}
	})

	t.Run("only the payer edits", func(t *testing.T) {
		_, err := e.book.Update(ctx, "B", expense.ID, ExpenseInput{
			Title: "Dinner", Amount: 9000, Policy: models.SplitEqual,
			Participants: []calculator.Participant{{MemberID: "A"}, {MemberID: "B"}},
		})
		if !errors.Is(err, errs.ErrForbidden) {
			t.Errorf("expected forbidden, got %v", err)
		}
	})

	t.Run("update regenerates splits", func(t *testing.T) {
		got, err := e.book.Update(ctx, "A", expense.ID, ExpenseInput{
			Title: "Dinner", Amount: 9000, Policy: models.SplitEqual,
			Participants: []calculator.Participant{{MemberID: "A"}, {MemberID: "B"}},
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if len(got.Splits) != 2 || got.Splits[1].Owed != 4500 {
			t.Errorf("unexpected splits: %+v", got.Splits)
		}
		if n := e.emitter.count(events.TypeExpenseUpdated); n != 2 {
			t.Errorf("ExpenseUpdated events: expected 2, got %d", n)
		}
	})

	t.Run("settled expenses cannot be edited", func(t *testing.T) {
		e.deposit(t, "B", 4500)
		if _, err := e.exec.Transfer(ctx, TransferRequest{FromMemberID: "B", ToMemberID: "A", Amount: 4500, GroupID: "g1"}); err != nil {
			t.Fatalf("Transfer failed: %v", err)
		}
		_, err := e.book.Update(ctx, "A", expense.ID, ExpenseInput{
			Title: "Dinner", Amount: 100, Policy: models.SplitEqual,
			Participants: []calculator.Participant{{MemberID: "A"}, {MemberID: "B"}},
		})
		if !errors.Is(err, errs.ErrConflict) {
			t.Errorf("expected conflict, got %v", err)
		}
	})

	t.Run("delete hides the expense from balances", func(t *testing.T) {
		cab, err := e.book.List(ctx, "C", "g1")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(cab) != 2 || cab[0].Title != "Cab" {
			t.Fatalf("expected newest first, got %d expenses", len(cab))
		}
		if err := e.book.Delete(ctx, "C", cab[0].ID); !errors.Is(err, errs.ErrForbidden) {
			t.Errorf("expected forbidden, got %v", err)
		}
		if err := e.book.Delete(ctx, "B", cab[0].ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		balances, err := e.agg.NetBalances(ctx, storage.GroupScope("g1"))
		if err != nil {
			t.Fatalf("NetBalances failed: %v", err)
		}
		for _, b := range balances {
			if b.Net != 0 {
				t.Errorf("expected zero balances, got %+v", b)
			}
		}
		if _, err := e.book.Update(ctx, "B", cab[0].ID, ExpenseInput{Title: "Cab"}); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("deleted expense: expected not found, got %v", err)
		}
	})
}
