package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchKey(t *testing.T) {
	tests := []struct {
		name   string
		phone  string
		region string
		want   string
	}{
		{"national US format", "(202) 555-0173", "US", "+12025550173"},
		{"international US format", "+1 202 555 0173", "US", "+12025550173"},
		{"default region", "202.555.0173", "", "+12025550173"},
		{"other region", "612 34 56 78", "ES", "+34612345678"},
		{"garbage falls back to digits", "ext 12", "US", "12"},
		{"empty", "   ", "US", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchKey(tt.phone, tt.region))
		})
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("(650) 253-0000", "US")
	require.NoError(t, err)
	assert.Equal(t, "+16502530000", got)

	_, err = Normalize("", "US")
	assert.Error(t, err)

	_, err = Normalize("123", "US")
	assert.Error(t, err)
}

func TestWhatsAppID(t *testing.T) {
	got, err := WhatsAppID("+34 612 34 56 78", "US")
	require.NoError(t, err)
	assert.Equal(t, "34612345678", got)
}

func TestValidate(t *testing.T) {
	res, err := Validate("+44 20 7946 0958", "US")
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, "GB", res.CountryCode)
	assert.Equal(t, "+442079460958", res.E164Format)
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "5550100", Digits("555-01 00"))
	assert.Equal(t, "", Digits("abc"))
}
