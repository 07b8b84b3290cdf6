package models

// FareType selects which fare a ticket holder entry is priced with
type FareType string

const (
	FareTypeNormal           FareType = "NORMAL"
	FareTypeChild            FareType = "CHILD"
	FareTypeRoundTrip        FareType = "ROUND_TRIP"
	FareTypeStockDiscount    FareType = "STOCK_DISCOUNT"
	FareTypeStockDiscountX2  FareType = "STOCK_DISCOUNT_X2"
	FareTypeStudent          FareType = "STUDENT"
	FareTypeStudentRoundTrip FareType = "STUDENT_ROUND_TRIP"
	FareTypeDisabled         FareType = "DISABLED"
)

var fareTypeLabels = map[FareType]string{
	FareTypeNormal:           "普通運賃",
	FareTypeChild:            "小児運賃",
	FareTypeRoundTrip:        "往復",
	FareTypeStockDiscount:    "株割",
	FareTypeStockDiscountX2:  "株割x2",
	FareTypeStudent:          "学割",
	FareTypeStudentRoundTrip: "学割往復",
	FareTypeDisabled:         "無効",
}

// FareTypes lists every fare type in display order
func FareTypes() []FareType {
	return []FareType{
		FareTypeNormal,
		FareTypeChild,
		FareTypeRoundTrip,
		FareTypeStockDiscount,
		FareTypeStockDiscountX2,
		FareTypeStudent,
		FareTypeStudentRoundTrip,
		FareTypeDisabled,
	}
}

// Valid reports whether f is one of the known fare types
func (f FareType) Valid() bool {
	_, ok := fareTypeLabels[f]
	return ok
}

// Label returns the display label, or the raw value for unknown types
func (f FareType) Label() string {
	if label, ok := fareTypeLabels[f]; ok {
		return label
	}
	return string(f)
}
