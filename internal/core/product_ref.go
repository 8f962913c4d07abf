package core

// ProductKind is the discriminator stored next to a product id.
type ProductKind string

const (
	ProductDevice    ProductKind = "DEVICE"
	ProductAccessory ProductKind = "ACCESSORY"
)

// ProductRef points at either a single device or an accessory SKU.
// The interface is sealed; the only implementations are DeviceRef and AccessoryRef.
type ProductRef interface {
	Kind() ProductKind
	ID() int
	sealedProductRef()
}

type DeviceRef struct{ DeviceID int }

func (r DeviceRef) Kind() ProductKind { return ProductDevice }
func (r DeviceRef) ID() int           { return r.DeviceID }
func (DeviceRef) sealedProductRef()   {}

type AccessoryRef struct{ AccessoryID int }

func (r AccessoryRef) Kind() ProductKind { return ProductAccessory }
func (r AccessoryRef) ID() int           { return r.AccessoryID }
func (AccessoryRef) sealedProductRef()   {}

// NewProductRef rebuilds a reference from its stored (kind, id) pair.
func NewProductRef(kind ProductKind, id int) (ProductRef, error) {
	switch kind {
	case ProductDevice:
		return DeviceRef{DeviceID: id}, nil
	case ProductAccessory:
		return AccessoryRef{AccessoryID: id}, nil
	}
	return nil, validationf("unknown product kind %q", kind)
}

// MatchProduct dispatches on the reference. Every caller supplies a handler
// for each kind.
func MatchProduct[T any](ref ProductRef, onDevice func(DeviceRef) T, onAccessory func(AccessoryRef) T) T {
	switch r := ref.(type) {
	case DeviceRef:
		return onDevice(r)
	case AccessoryRef:
		return onAccessory(r)
	}
	panic("core: unknown ProductRef implementation")
}
