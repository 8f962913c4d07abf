package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Operation category codes the services post under. Each must exist in
// operation_categories; the default schema seeds all of them.
const (
	CategorySaleIncome       = "SALE_INCOME"
	CategoryChangeAdjustment = "CHANGE_ADJUSTMENT"
	CategoryCustomerRefund   = "CUSTOMER_REFUND"
	CategorySupplierPayment  = "SUPPLIER_PAYMENT"
	CategoryRepairExpense    = "REPAIR_EXPENSE"
	CategoryRepairIncome     = "REPAIR_INCOME"
	CategoryManualIncome     = "MANUAL_INCOME"
	CategoryManualExpense    = "MANUAL_EXPENSE"
)

// CategoryResolver maps a category code to its operation_categories row.
type CategoryResolver interface {
	ResolveCategory(ctx context.Context, q querier, code string) (int, error)
}

type categoryResolver struct{}

// NewCategoryResolver constructs a CategoryResolver backed by operation_categories.
func NewCategoryResolver() CategoryResolver {
	return categoryResolver{}
}

// ResolveCategory returns the category id for code. A missing row is a
// ConfigurationError: the operation cannot be booked until someone seeds it.
func (categoryResolver) ResolveCategory(ctx context.Context, q querier, code string) (int, error) {
	var id int
	err := q.QueryRow(ctx, "SELECT id FROM operation_categories WHERE code = $1", code).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, configurationf("operation category %q is not configured; seed operation_categories or run cmd/migrate", code)
		}
		return 0, fmt.Errorf("failed to resolve operation category %q: %w", code, err)
	}
	return id, nil
}
