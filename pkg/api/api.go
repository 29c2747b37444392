// Package api defines the splitledger.v1 RPC surface: service and procedure
// names, request and response messages, and the JSON codec Connect uses to
// carry them.
//
// Messages are plain Go structs. Amounts are int64 minor units and
// percentages are basis points, so no floating point crosses the wire.
package api

import (
	"encoding/json"

	"connectrpc.com/connect"
)

const (
	// LedgerServiceName is the fully-qualified name of the LedgerService service.
	LedgerServiceName = "splitledger.v1.LedgerService"
	// WalletServiceName is the fully-qualified name of the WalletService service.
	WalletServiceName = "splitledger.v1.WalletService"
	// PaymentServiceName is the fully-qualified name of the PaymentService service.
	PaymentServiceName = "splitledger.v1.PaymentService"
	// NotificationServiceName is the fully-qualified name of the NotificationService service.
	NotificationServiceName = "splitledger.v1.NotificationService"
)

// Procedure paths, in the form "/<service>/<method>".
const (
	LedgerServiceGetNetBalancesProcedure  = "/" + LedgerServiceName + "/GetNetBalances"
	LedgerServicePlanSettlementsProcedure = "/" + LedgerServiceName + "/PlanSettlements"
	LedgerServiceCreateExpenseProcedure   = "/" + LedgerServiceName + "/CreateExpense"
	LedgerServiceUpdateExpenseProcedure   = "/" + LedgerServiceName + "/UpdateExpense"
	LedgerServiceDeleteExpenseProcedure   = "/" + LedgerServiceName + "/DeleteExpense"
	LedgerServiceListExpensesProcedure    = "/" + LedgerServiceName + "/ListExpenses"

	WalletServiceGetWalletProcedure        = "/" + WalletServiceName + "/GetWallet"
	WalletServiceDepositProcedure          = "/" + WalletServiceName + "/Deposit"
	WalletServiceTransferProcedure         = "/" + WalletServiceName + "/Transfer"
	WalletServiceListTransactionsProcedure = "/" + WalletServiceName + "/ListTransactions"

	PaymentServiceCreatePaymentProcedure        = "/" + PaymentServiceName + "/CreatePayment"
	PaymentServiceConfirmPaymentProcedure       = "/" + PaymentServiceName + "/ConfirmPayment"
	PaymentServiceApprovePaymentProcedure       = "/" + PaymentServiceName + "/ApprovePayment"
	PaymentServiceRejectPaymentProcedure        = "/" + PaymentServiceName + "/RejectPayment"
	PaymentServiceGetPaymentProcedure           = "/" + PaymentServiceName + "/GetPayment"
	PaymentServiceListIncomingPaymentsProcedure = "/" + PaymentServiceName + "/ListIncomingPayments"
	PaymentServiceListOutgoingPaymentsProcedure = "/" + PaymentServiceName + "/ListOutgoingPayments"
	PaymentServiceSetPaymentHandleProcedure     = "/" + PaymentServiceName + "/SetPaymentHandle"

	NotificationServiceListNotificationsProcedure        = "/" + NotificationServiceName + "/ListNotifications"
	NotificationServiceMarkNotificationReadProcedure     = "/" + NotificationServiceName + "/MarkNotificationRead"
	NotificationServiceMarkAllNotificationsReadProcedure = "/" + NotificationServiceName + "/MarkAllNotificationsRead"
)

// Metadata headers set on error responses.
const (
	// ErrorKindHeader carries the stable error kind, e.g. "insufficient_funds".
	ErrorKindHeader = "Error-Kind"
	// TransactionIDHeader carries the id of a failed transfer's audit record.
	TransactionIDHeader = "Transaction-Id"
)

// JSONCodec marshals messages with encoding/json. It is registered under the
// name "json" so it replaces Connect's protobuf JSON codec for these services.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// WithCodec is the handler and client option that installs JSONCodec.
func WithCodec() connect.Option {
	return connect.WithCodec(JSONCodec{})
}
