package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NomenclatureFixture represents test nomenclature item data
type NomenclatureFixture struct {
	ID       string
	Name     string
	Category string
	Unit     string
	Notes    string
	IsActive bool
}

// BatchFixture represents test batch data
type BatchFixture struct {
	ID                string
	NomenclatureID    string
	BatchNumber       string
	Quantity          int
	VolumePerUnit     *decimal.Decimal
	CurrentUnitVolume *decimal.Decimal
	ExpirationDate    *time.Time
	Status            string
	Manufacturer      string
	Supplier          string
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Nomenclature creates a nomenclature item fixture
func (f *FixtureFactory) Nomenclature(opts ...func(*NomenclatureFixture)) NomenclatureFixture {
	seq := f.nextSeq()
	fixture := NomenclatureFixture{
		ID:       uuid.New().String(),
		Name:     fmt.Sprintf("DMEM High Glucose %d", seq),
		Category: "medium",
		Unit:     "ml",
		IsActive: true,
	}

	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithNomenclatureName overrides the fixture name
func WithNomenclatureName(name string) func(*NomenclatureFixture) {
	return func(f *NomenclatureFixture) {
		f.Name = name
	}
}

// WithCategory overrides the fixture category
func WithCategory(category string) func(*NomenclatureFixture) {
	return func(f *NomenclatureFixture) {
		f.Category = category
	}
}

// WithUnit overrides the fixture unit of measure
func WithUnit(unit string) func(*NomenclatureFixture) {
	return func(f *NomenclatureFixture) {
		f.Unit = unit
	}
}

// Batch creates a batch fixture. Defaults to a unit-granular batch of 10.
func (f *FixtureFactory) Batch(nomenclatureID string, opts ...func(*BatchFixture)) BatchFixture {
	seq := f.nextSeq()
	fixture := BatchFixture{
		ID:             uuid.New().String(),
		NomenclatureID: nomenclatureID,
		BatchNumber:    fmt.Sprintf("LOT-%04d", seq),
		Quantity:       10,
		Status:         "available",
		Manufacturer:   "Gibco",
		Supplier:       "Thermo Fisher",
	}

	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithQuantity overrides the batch unit count
func WithQuantity(quantity int) func(*BatchFixture) {
	return func(f *BatchFixture) {
		f.Quantity = quantity
	}
}

// WithVolumePerUnit makes the batch volume-granular with full open unit
func WithVolumePerUnit(volume string) func(*BatchFixture) {
	return func(f *BatchFixture) {
		v := decimal.RequireFromString(volume)
		f.VolumePerUnit = &v
		cuv := v
		f.CurrentUnitVolume = &cuv
	}
}

// WithCurrentUnitVolume overrides the open-unit remainder
func WithCurrentUnitVolume(volume string) func(*BatchFixture) {
	return func(f *BatchFixture) {
		v := decimal.RequireFromString(volume)
		f.CurrentUnitVolume = &v
	}
}

// WithExpiration sets the expiration date
func WithExpiration(t time.Time) func(*BatchFixture) {
	return func(f *BatchFixture) {
		f.ExpirationDate = &t
	}
}

// WithExpirationIn sets the expiration date relative to now
func WithExpirationIn(days int) func(*BatchFixture) {
	return func(f *BatchFixture) {
		t := time.Now().UTC().AddDate(0, 0, days)
		f.ExpirationDate = &t
	}
}

// WithBatchNumber overrides the batch number
func WithBatchNumber(number string) func(*BatchFixture) {
	return func(f *BatchFixture) {
		f.BatchNumber = number
	}
}

// WithStatus overrides the batch status
func WithStatus(status string) func(*BatchFixture) {
	return func(f *BatchFixture) {
		f.Status = status
	}
}
