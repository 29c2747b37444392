package service

import (
	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/storage"
)

// Engine bundles the components the handlers serve.
type Engine struct {
	Store      storage.Store
	Aggregator *ledger.Aggregator
	Executor   *ledger.Executor
	Workflow   *ledger.Workflow
	Expenses   *ledger.ExpenseBook
}

// Mount registers all four services on r. Interceptors run in the order given.
func Mount(r chi.Router, e Engine, interceptors ...connect.Interceptor) {
	opts := []connect.HandlerOption{connect.WithInterceptors(interceptors...)}

	RegisterLedgerService(r, NewLedgerService(e.Store, e.Aggregator, e.Expenses), opts...)
	RegisterWalletService(r, NewWalletService(e.Store, e.Executor), opts...)
	RegisterPaymentService(r, NewPaymentService(e.Workflow), opts...)
	RegisterNotificationService(r, NewNotificationService(e.Store), opts...)
}
