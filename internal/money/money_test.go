package money

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTwoDecimalsWithSymbol(t *testing.T) {
	f, err := NewFormatter("es-MX", "MXN", "$")
	require.NoError(t, err)

	got := f.Format(1234.5)

	assert.True(t, strings.HasPrefix(got, "$"), "got %q", got)
	assert.Regexp(t, regexp.MustCompile(`^\$1\D?234\D50$`), got)
}

func TestFormatNegative(t *testing.T) {
	f := MustFormatter("es-MX", "MXN", "$")
	got := f.Format(-20)
	assert.True(t, strings.HasPrefix(got, "-$"), "got %q", got)
}

func TestParseInvertsFormat(t *testing.T) {
	locales := []string{"es-MX", "en-US", "es-ES", "de-DE"}
	values := []float64{0, 1234.5, -350.25, 1000000, 0.01}

	for _, loc := range locales {
		t.Run(loc, func(t *testing.T) {
			f, err := NewFormatter(loc, "MXN", "")
			require.NoError(t, err)
			require.NotEmpty(t, f.Symbol())

			for _, v := range values {
				parsed, err := f.Parse(f.Format(v))
				require.NoError(t, err, "value %v formatted as %q", v, f.Format(v))
				assert.InDelta(t, v, parsed, 1e-9)
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	f := MustFormatter("es-MX", "MXN", "$")
	_, err := f.Parse("n/a")
	assert.Error(t, err)
}

func TestParseRejectsStrayCharacters(t *testing.T) {
	f := MustFormatter("es-MX", "MXN", "$")

	for _, in := range []string{"12a4", "$1,234.50 MXN", "1#000"} {
		_, err := f.Parse(in)
		assert.Error(t, err, "input %q", in)
	}

	v, err := f.Parse("$1,234.50")
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, v, 1e-9)
}

func TestParseUsesLocaleSeparators(t *testing.T) {
	f := MustFormatter("de-DE", "EUR", "€")

	v, err := f.Parse("1.234,50 €")
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, v, 1e-9)
	assert.Equal(t, "EUR", f.Currency())
}

func TestNewFormatterInvalidInput(t *testing.T) {
	_, err := NewFormatter("es-MX", "NOPE", "")
	assert.Error(t, err)

	_, err = NewFormatter("???", "MXN", "")
	assert.Error(t, err)
}
