package core

import "context"

type NotificationKind string

const (
	NotifySupplierPaymentDue NotificationKind = "SUPPLIER_PAYMENT_DUE"
	NotifyRepairAwaitingPay  NotificationKind = "REPAIR_AWAITING_PAYMENT"
)

// Notification is a message for staff, sent after the triggering unit of work commits.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
	Ref     int              `json:"ref"`
}

// Notifier delivers notifications. Delivery is best-effort: services ignore
// its error and never undo committed work because of it.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }

// NopNotifier discards every notification.
func NopNotifier() Notifier { return nopNotifier{} }

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}
