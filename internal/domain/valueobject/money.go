package valueobject

import (
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Split — разделение цены заказа между платформой и студентом.
type Split struct {
	Commission decimal.Decimal
	Student    decimal.Decimal
}

// NewPrice проверяет, что цена положительна, и округляет до копеек.
func NewPrice(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return zero, apperror.ValidationField("price", "price must be greater than zero")
	}
	return amount.Round(2), nil
}

// ValidatePercent проверяет процент на диапазон [0, 100].
func ValidatePercent(field string, p decimal.Decimal) error {
	if p.LessThan(zero) || p.GreaterThan(hundred) {
		return apperror.ValidationField(field, field+" must be between 0 and 100")
	}
	return nil
}

// PercentOf возвращает amount * p / 100, округлённое до копеек.
func PercentOf(amount, p decimal.Decimal) decimal.Decimal {
	return amount.Mul(p).Div(hundred).Round(2)
}

// CommissionSplit считает комиссию по ставке в процентах. Студенту достаётся
// остаток, поэтому Commission + Student всегда равно price.
func CommissionSplit(price, ratePercent decimal.Decimal) (Split, error) {
	if err := ValidatePercent("commission_rate", ratePercent); err != nil {
		return Split{}, err
	}
	commission := PercentOf(price, ratePercent)
	return Split{Commission: commission, Student: price.Sub(commission)}, nil
}

// RefundSplit делит цену при частичном возврате: клиенту p%, студенту остальное.
func RefundSplit(price, refundPercent decimal.Decimal) (refund, payout decimal.Decimal, err error) {
	if err := ValidatePercent("refund_percentage", refundPercent); err != nil {
		return zero, zero, err
	}
	refund = PercentOf(price, refundPercent)
	return refund, price.Sub(refund), nil
}

// ToMinorUnits переводит сумму в центы для платёжного шлюза.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits — обратное преобразование.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
