package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AuditKind names one kind of device event.
type AuditKind string

const (
	AuditReceivedFromSupplier AuditKind = "RECEIVED_FROM_SUPPLIER"
	AuditInspectionPassed     AuditKind = "INSPECTION_PASSED"
	AuditDefectFound          AuditKind = "DEFECT_FOUND"
	AuditBatteryTestRecorded  AuditKind = "BATTERY_TEST_RECORDED"
	AuditPackaged             AuditKind = "PACKAGED"
	AuditAcceptedToWarehouse  AuditKind = "ACCEPTED_TO_WAREHOUSE"
	AuditMoved                AuditKind = "MOVED"
	AuditSold                 AuditKind = "SOLD"
	AuditCustomerReturn       AuditKind = "CUSTOMER_RETURN"
	AuditSentToSupplier       AuditKind = "SENT_TO_SUPPLIER"
	AuditReturnedFromSupplier AuditKind = "RETURNED_FROM_SUPPLIER"
	AuditWrittenOffBySupplier AuditKind = "WRITTEN_OFF_BY_SUPPLIER"
	AuditReplacementReceived  AuditKind = "REPLACEMENT_RECEIVED"
	AuditSentToRepair         AuditKind = "SENT_TO_REPAIR"
	AuditRepairFinished       AuditKind = "REPAIR_FINISHED"
	AuditRepairPaid           AuditKind = "REPAIR_PAID"
	AuditExchanged            AuditKind = "EXCHANGED"
	AuditAddedToLoanerPool    AuditKind = "ADDED_TO_LOANER_POOL"
	AuditIssuedAsLoaner       AuditKind = "ISSUED_AS_LOANER"
	AuditReturnedFromLoaner   AuditKind = "RETURNED_FROM_LOANER"
)

// AuditPayload is the typed body of an audit event. Render produces the
// human-readable line; the structured fields stay the source of truth.
type AuditPayload interface {
	Kind() AuditKind
	Render() string
}

// AuditEvent is one immutable entry of a device's history.
type AuditEvent struct {
	ID        int
	DeviceID  int
	ActorID   int
	Kind      AuditKind
	Payload   AuditPayload
	Detail    string
	CreatedAt time.Time
}

type ChecklistOutcome struct {
	ItemID   int    `json:"item_id"`
	ItemName string `json:"item_name"`
	Passed   bool   `json:"passed"`
	Note     string `json:"note,omitempty"`
}

type ReceivedFromSupplier struct {
	OrderID       int             `json:"order_id"`
	SupplierName  string          `json:"supplier_name"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
}

func (ReceivedFromSupplier) Kind() AuditKind { return AuditReceivedFromSupplier }
func (p ReceivedFromSupplier) Render() string {
	return fmt.Sprintf("Received from supplier %s under order #%d at %s", p.SupplierName, p.OrderID, p.PurchasePrice.StringFixed(2))
}

type InspectionPassed struct {
	SerialNumber       string             `json:"serial_number"`
	SkippedBatteryTest bool               `json:"skipped_battery_test"`
	Results            []ChecklistOutcome `json:"results"`
}

func (InspectionPassed) Kind() AuditKind { return AuditInspectionPassed }
func (p InspectionPassed) Render() string {
	next := "sent to battery test"
	if p.SkippedBatteryTest {
		next = "battery test skipped, sent to packaging"
	}
	return fmt.Sprintf("Inspection passed for S/N %s (%d checks), %s", p.SerialNumber, len(p.Results), next)
}

type DefectFound struct {
	SerialNumber string             `json:"serial_number"`
	FailedItems  []string           `json:"failed_items"`
	Results      []ChecklistOutcome `json:"results"`
}

func (DefectFound) Kind() AuditKind { return AuditDefectFound }
func (p DefectFound) Render() string {
	return fmt.Sprintf("Defect found during inspection of S/N %s: %s", p.SerialNumber, strings.Join(p.FailedItems, ", "))
}

type BatteryTestRecorded struct {
	DrainPerHour *decimal.Decimal `json:"drain_per_hour"`
	Threshold    decimal.Decimal  `json:"threshold"`
	MatchedKey   string           `json:"matched_key,omitempty"`
	Passed       bool             `json:"passed"`
}

func (BatteryTestRecorded) Kind() AuditKind { return AuditBatteryTestRecorded }
func (p BatteryTestRecorded) Render() string {
	drain := "n/a"
	if p.DrainPerHour != nil {
		drain = p.DrainPerHour.StringFixed(2) + "%/h"
	}
	verdict := "passed"
	if !p.Passed {
		verdict = "failed"
	}
	return fmt.Sprintf("Battery test %s: drain %s, threshold %s%%/h", verdict, drain, p.Threshold.StringFixed(2))
}

type Packaged struct{}

func (Packaged) Kind() AuditKind { return AuditPackaged }
func (Packaged) Render() string  { return "Packaged" }

type AcceptedToWarehouse struct {
	Location    Location `json:"location"`
	StockUnitID int      `json:"stock_unit_id"`
}

func (AcceptedToWarehouse) Kind() AuditKind { return AuditAcceptedToWarehouse }
func (p AcceptedToWarehouse) Render() string {
	return fmt.Sprintf("Accepted into stock at %s", p.Location)
}

type Moved struct {
	From Location `json:"from"`
	To   Location `json:"to"`
}

func (Moved) Kind() AuditKind  { return AuditMoved }
func (p Moved) Render() string { return fmt.Sprintf("Moved from %s to %s", p.From, p.To) }

type Sold struct {
	SaleID       int             `json:"sale_id"`
	CustomerName string          `json:"customer_name,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

func (Sold) Kind() AuditKind { return AuditSold }
func (p Sold) Render() string {
	if p.CustomerName == "" {
		return fmt.Sprintf("Sold in sale #%d for %s", p.SaleID, p.UnitPrice.StringFixed(2))
	}
	return fmt.Sprintf("Sold to %s in sale #%d for %s", p.CustomerName, p.SaleID, p.UnitPrice.StringFixed(2))
}

type CustomerReturn struct {
	SaleID       int             `json:"sale_id"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Reason       string          `json:"reason,omitempty"`
}

func (CustomerReturn) Kind() AuditKind { return AuditCustomerReturn }
func (p CustomerReturn) Render() string {
	return fmt.Sprintf("Returned by customer from sale #%d, refunded %s", p.SaleID, p.RefundAmount.StringFixed(2))
}

type SentToSupplier struct {
	Note string `json:"note,omitempty"`
}

func (SentToSupplier) Kind() AuditKind { return AuditSentToSupplier }
func (SentToSupplier) Render() string  { return "Sent to supplier for replacement or refund" }

type ReturnedFromSupplier struct{}

func (ReturnedFromSupplier) Kind() AuditKind { return AuditReturnedFromSupplier }
func (ReturnedFromSupplier) Render() string {
	return "Returned from supplier, awaiting inspection"
}

type WrittenOffBySupplier struct {
	ReplacementDeviceID int    `json:"replacement_device_id"`
	ReplacementSerial   string `json:"replacement_serial"`
}

func (WrittenOffBySupplier) Kind() AuditKind { return AuditWrittenOffBySupplier }
func (p WrittenOffBySupplier) Render() string {
	return fmt.Sprintf("Written off by supplier, replaced by device #%d (S/N %s)", p.ReplacementDeviceID, p.ReplacementSerial)
}

type ReplacementReceived struct {
	OriginalDeviceID int    `json:"original_device_id"`
	OriginalSerial   string `json:"original_serial"`
}

func (ReplacementReceived) Kind() AuditKind { return AuditReplacementReceived }
func (p ReplacementReceived) Render() string {
	return fmt.Sprintf("Received from supplier as replacement for device #%d (S/N %s)", p.OriginalDeviceID, p.OriginalSerial)
}

type SentToRepair struct {
	RepairID   int        `json:"repair_id"`
	RepairType RepairType `json:"repair_type"`
	Problem    string     `json:"problem"`
}

func (SentToRepair) Kind() AuditKind { return AuditSentToRepair }
func (p SentToRepair) Render() string {
	return fmt.Sprintf("Taken for %s repair #%d: %s", strings.ToLower(string(p.RepairType)), p.RepairID, p.Problem)
}

type RepairFinished struct {
	RepairID        int              `json:"repair_id"`
	WorkPerformed   string           `json:"work_performed"`
	FinalCost       *decimal.Decimal `json:"final_cost,omitempty"`
	AwaitingPayment bool             `json:"awaiting_payment"`
}

func (RepairFinished) Kind() AuditKind { return AuditRepairFinished }
func (p RepairFinished) Render() string {
	if p.AwaitingPayment && p.FinalCost != nil {
		return fmt.Sprintf("Repair #%d finished (%s), awaiting payment of %s", p.RepairID, p.WorkPerformed, p.FinalCost.StringFixed(2))
	}
	return fmt.Sprintf("Repair #%d finished (%s), returned to customer", p.RepairID, p.WorkPerformed)
}

type RepairPaymentReceived struct {
	RepairID int             `json:"repair_id"`
	Amount   decimal.Decimal `json:"amount"`
}

func (RepairPaymentReceived) Kind() AuditKind { return AuditRepairPaid }
func (p RepairPaymentReceived) Render() string {
	return fmt.Sprintf("Repair #%d paid %s, returned to customer", p.RepairID, p.Amount.StringFixed(2))
}

// ExchangeDirection tells which side of an exchange the device was on.
type ExchangeDirection string

const (
	ExchangeTakenBack ExchangeDirection = "TAKEN_BACK"
	ExchangeHandedOut ExchangeDirection = "HANDED_OUT"
)

type Exchanged struct {
	SaleID              int               `json:"sale_id"`
	Direction           ExchangeDirection `json:"direction"`
	CounterpartDeviceID int               `json:"counterpart_device_id"`
	CounterpartSerial   string            `json:"counterpart_serial"`
}

func (Exchanged) Kind() AuditKind { return AuditExchanged }
func (p Exchanged) Render() string {
	if p.Direction == ExchangeTakenBack {
		return fmt.Sprintf("Taken back in exchange for S/N %s (sale #%d)", p.CounterpartSerial, p.SaleID)
	}
	return fmt.Sprintf("Handed out in exchange for S/N %s (sale #%d)", p.CounterpartSerial, p.SaleID)
}

type AddedToLoanerPool struct{}

func (AddedToLoanerPool) Kind() AuditKind { return AuditAddedToLoanerPool }
func (AddedToLoanerPool) Render() string  { return "Moved to loaner pool" }

type IssuedAsLoaner struct {
	RepairID     int `json:"repair_id"`
	AssignmentID int `json:"assignment_id"`
}

func (IssuedAsLoaner) Kind() AuditKind { return AuditIssuedAsLoaner }
func (p IssuedAsLoaner) Render() string {
	return fmt.Sprintf("Issued as loaner for repair #%d", p.RepairID)
}

type ReturnedFromLoaner struct {
	RepairID     int `json:"repair_id"`
	AssignmentID int `json:"assignment_id"`
}

func (ReturnedFromLoaner) Kind() AuditKind { return AuditReturnedFromLoaner }
func (p ReturnedFromLoaner) Render() string {
	return fmt.Sprintf("Loaner returned from repair #%d, awaiting inspection", p.RepairID)
}

// DecodeAuditPayload rebuilds the typed payload stored for kind.
func DecodeAuditPayload(kind AuditKind, raw []byte) (AuditPayload, error) {
	var p AuditPayload
	switch kind {
	case AuditReceivedFromSupplier:
		p = &ReceivedFromSupplier{}
	case AuditInspectionPassed:
		p = &InspectionPassed{}
	case AuditDefectFound:
		p = &DefectFound{}
	case AuditBatteryTestRecorded:
		p = &BatteryTestRecorded{}
	case AuditPackaged:
		return Packaged{}, nil
	case AuditAcceptedToWarehouse:
		p = &AcceptedToWarehouse{}
	case AuditMoved:
		p = &Moved{}
	case AuditSold:
		p = &Sold{}
	case AuditCustomerReturn:
		p = &CustomerReturn{}
	case AuditSentToSupplier:
		p = &SentToSupplier{}
	case AuditReturnedFromSupplier:
		return ReturnedFromSupplier{}, nil
	case AuditWrittenOffBySupplier:
		p = &WrittenOffBySupplier{}
	case AuditReplacementReceived:
		p = &ReplacementReceived{}
	case AuditSentToRepair:
		p = &SentToRepair{}
	case AuditRepairFinished:
		p = &RepairFinished{}
	case AuditRepairPaid:
		p = &RepairPaymentReceived{}
	case AuditExchanged:
		p = &Exchanged{}
	case AuditAddedToLoanerPool:
		return AddedToLoanerPool{}, nil
	case AuditIssuedAsLoaner:
		p = &IssuedAsLoaner{}
	case AuditReturnedFromLoaner:
		p = &ReturnedFromLoaner{}
	default:
		return nil, fmt.Errorf("unknown audit kind %q", kind)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return deref(p), nil
}

// deref returns the value form so decoded payloads compare equal to the
// values the services append.
func deref(p AuditPayload) AuditPayload {
	switch v := p.(type) {
	case *ReceivedFromSupplier:
		return *v
	case *InspectionPassed:
		return *v
	case *DefectFound:
		return *v
	case *BatteryTestRecorded:
		return *v
	case *AcceptedToWarehouse:
		return *v
	case *Moved:
		return *v
	case *Sold:
		return *v
	case *CustomerReturn:
		return *v
	case *SentToSupplier:
		return *v
	case *WrittenOffBySupplier:
		return *v
	case *ReplacementReceived:
		return *v
	case *SentToRepair:
		return *v
	case *RepairFinished:
		return *v
	case *RepairPaymentReceived:
		return *v
	case *Exchanged:
		return *v
	case *IssuedAsLoaner:
		return *v
	case *ReturnedFromLoaner:
		return *v
	}
	return p
}
