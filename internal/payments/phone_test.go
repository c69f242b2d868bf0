package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/wafulah/dukapesa-backend/pkg/errors"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"canonical", "254712345678", "254712345678"},
		{"plus prefix", "+254712345678", "254712345678"},
		{"local safaricom", "0712345678", "254712345678"},
		{"local airtel style", "0112345678", "254112345678"},
		{"spaces and dashes", "+254 712-345-678", "254712345678"},
		{"leading whitespace", "  0712345678 ", "254712345678"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizePhone_invalid(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too short", "25471234567"},
		{"too long", "2547123456789"},
		{"wrong country", "255712345678"},
		{"landline prefix", "0202345678"},
		{"letters", "07123A5678"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizePhone(tc.input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}
