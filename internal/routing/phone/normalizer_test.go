package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/textroute/smsrouter/internal/routing/domain"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer("1")

	testCases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "dashed national format", input: "555-123-4567", want: "+15551234567"},
		{name: "plain ten digits", input: "5551234567", want: "+15551234567"},
		{name: "parenthesized format", input: "(555) 123-4567", want: "+15551234567"},
		{name: "eleven digits with country digit", input: "15551234567", want: "+15551234567"},
		{name: "already normalized", input: "+15551234567", want: "+15551234567"},
		{name: "international number", input: "+442071838750", want: "+442071838750"},
		{name: "doubled plus collapses", input: "++15551234567", want: "+15551234567"},
		{name: "plus with separators", input: "+1 (555) 123-4567", want: "+15551234567"},
		{name: "empty string", input: "", wantErr: true},
		{name: "letters only", input: "not-a-number", wantErr: true},
		{name: "too short", input: "12345", wantErr: true},
		{name: "plus form too short", input: "+123456", wantErr: true},
		{name: "plus form too long", input: "+1234567890123456789", wantErr: true},
		{name: "eleven digits wrong country digit", input: "25551234567", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.Normalize(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidPhoneFormat)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizer_Idempotent(t *testing.T) {
	n := NewNormalizer("1")

	for _, raw := range []string{"555-123-4567", "15551234567", "+442071838750"} {
		first, err := n.Normalize(raw)
		assert.NoError(t, err)
		second, err := n.Normalize(first)
		assert.NoError(t, err)
		assert.Equal(t, first, second, "normalizing a canonical number must be a no-op")
	}
}

func TestNormalizer_DefaultCountryCode(t *testing.T) {
	n := NewNormalizer("")
	got, err := n.Normalize("5551234567")
	assert.NoError(t, err)
	assert.Equal(t, "+15551234567", got)
}
