// Package common - pluralize.go форматирует суммы токенов для людей.
// В хранилище и API суммы живут в минимальных единицах (uint64),
// здесь они переводятся в десятичную запись через shopspring/decimal.
package common

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// TokenAmount переводит сумму в минимальных единицах в десятичное число токенов.
//
//	TokenAmount(20_000_000_000, 9) → 20
//	TokenAmount(1_500_000_000, 9)  → 1.5
func TokenAmount(minor uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(minor), -decimals)
}

// FormatTokens создаёт строку вида "20 POKE" или "1.5 POKE".
func FormatTokens(minor uint64, decimals int32, symbol string) string {
	return fmt.Sprintf("%s %s", FormatNumber(TokenAmount(minor, decimals)), symbol)
}

// FormatTokensDelta создаёт строку вида "+20 POKE".
func FormatTokensDelta(minor uint64, decimals int32, symbol string) string {
	return "+" + FormatTokens(minor, decimals, symbol)
}

// ParseTokens переводит десятичную запись ("12.5") в минимальные единицы.
// Дробная часть глубже decimals отбрасывается не молча, а считается ошибкой.
func ParseTokens(s string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("некорректная сумма %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("сумма %q отрицательная", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("сумма %q точнее %d знаков", s, decimals)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("сумма %q слишком большая", s)
	}
	return bi.Uint64(), nil
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
//
//	FormatNumber(2350)     → "2 350"
//	FormatNumber(1234.5)   → "1 234.5"
func FormatNumber(d decimal.Decimal) string {
	s := d.String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	if hasFrac {
		sb.WriteByte('.')
		sb.WriteString(frac)
	}
	return sign + sb.String()
}
