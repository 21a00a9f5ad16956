// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: календарные дни в UTC, русская плюрализация, форматирование сумм.
package common

import (
	"math"
	"time"
)

// DateLayout - формат календарного дня в API и командах бота.
const DateLayout = "2006-01-02"

// DateOf возвращает календарный день (полночь UTC) для момента t.
//
// Все дневные лимиты и стрики считаются по UTC, независимо от часового пояса
// сервера и часового пояса, в котором пришёл timestamp:
//
//	DateOf(2024-03-10T23:59:59Z) → 2024-03-10
//	DateOf(2024-03-11T00:00:00Z) → 2024-03-11
//	DateOf(2024-03-11T02:30:00+03:00) → 2024-03-10
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsSameDay сообщает, попадают ли два момента в один календарный день UTC.
func IsSameDay(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

// IsYesterday сообщает, является ли day предыдущим календарным днём относительно today.
func IsYesterday(day, today time.Time) bool {
	return DateOf(day).AddDate(0, 0, 1).Equal(DateOf(today))
}

// ParseDate разбирает день в формате 2006-01-02 (UTC).
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDate форматирует календарный день.
func FormatDate(t time.Time) string {
	return DateOf(t).Format(DateLayout)
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04 UTC".
// Используется для отображения наград в Telegram.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("02.01.2006 15:04") + " UTC"
}

// pluralForm выбирает одну из трёх форм слова по правилам русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralForm(n int64, one, few, many string) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeDays возвращает правильную форму слова «день» для числа n.
//
//	PluralizeDays(1)  → "день"
//	PluralizeDays(3)  → "дня"
//	PluralizeDays(11) → "дней"
func PluralizeDays(n int) string {
	return pluralForm(int64(n), "день", "дня", "дней")
}

// PluralizeRewards возвращает правильную форму слова «награда».
func PluralizeRewards(n int) string {
	return pluralForm(int64(n), "награда", "награды", "наград")
}

// PluralizeEvents возвращает правильную форму слова «событие».
func PluralizeEvents(n uint64) string {
	return pluralForm(int64(n%100), "событие", "события", "событий")
}
