// Package money форматирует и разбирает денежные суммы с учётом локали.
package money

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter форматирует суммы с двумя знаками после запятой и символом валюты.
type Formatter struct {
	printer *message.Printer
	unit    currency.Unit
	symbol  string
	decimal rune
	group   rune
}

// NewFormatter создаёт форматтер для локали (например, "es-MX") и ISO-кода валюты.
// Если symbol пуст, используется символ валюты из CLDR для этой локали.
func NewFormatter(locale, code, symbol string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("parse currency %q: %w", code, err)
	}

	p := message.NewPrinter(tag)
	if symbol == "" {
		symbol = strings.TrimSpace(p.Sprint(currency.Symbol(unit)))
	}

	f := &Formatter{
		printer: p,
		unit:    unit,
		symbol:  symbol,
		decimal: '.',
	}

	if r, ok := firstSeparator(p.Sprint(number.Decimal(0.5, number.Scale(1)))); ok {
		f.decimal = r
	}
	if r, ok := firstSeparator(p.Sprint(number.Decimal(1234567))); ok && r != f.decimal {
		f.group = r
	}

	return f, nil
}

// MustFormatter работает как NewFormatter, но паникует при ошибке.
func MustFormatter(locale, code, symbol string) *Formatter {
	f, err := NewFormatter(locale, code, symbol)
	if err != nil {
		panic(err)
	}
	return f
}

// Symbol возвращает используемый символ валюты.
func (f *Formatter) Symbol() string {
	return f.symbol
}

// Currency возвращает ISO-код валюты.
func (f *Formatter) Currency() string {
	return f.unit.String()
}

// Format возвращает сумму вида "$1,234.50" (разделители зависят от локали).
func (f *Formatter) Format(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + f.symbol + f.printer.Sprint(number.Decimal(amount, number.Scale(2)))
}

// Parse разбирает строку, полученную из Format, или число с разделителями локали.
// Символ валюты, разделители разрядов и пробелы пропускаются, любой другой
// посторонний символ считается ошибкой.
func (f *Formatter) Parse(s string) (float64, error) {
	raw := strings.TrimSpace(s)
	if f.symbol != "" {
		raw = strings.ReplaceAll(raw, f.symbol, "")
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == f.decimal:
			b.WriteRune('.')
		case r == '-' || r == '−':
			b.WriteRune('-')
		case f.group != 0 && r == f.group, unicode.IsSpace(r):
		default:
			return 0, fmt.Errorf("parse money %q: unexpected %q", s, r)
		}
	}

	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		return 0, fmt.Errorf("parse money %q: no digits", s)
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse money %q: %w", s, err)
	}
	return v, nil
}

func firstSeparator(s string) (rune, bool) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsDigit(r) {
			return r, true
		}
		i += size
	}
	return 0, false
}
