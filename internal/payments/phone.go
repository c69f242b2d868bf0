package payments

import (
	"fmt"
	"strings"

	pkgerrors "github.com/wafulah/dukapesa-backend/pkg/errors"
)

// NormalizePhone converts a Kenyan mobile number to the canonical
// 254XXXXXXXXX form the gateway expects. Accepted inputs are +254..., 254...,
// 07... and 01... with optional spaces and dashes.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	cleaned = strings.TrimPrefix(cleaned, "+")
	switch {
	case strings.HasPrefix(cleaned, "254"):
		// already canonical, length checked below
	case strings.HasPrefix(cleaned, "07"), strings.HasPrefix(cleaned, "01"):
		cleaned = "254" + cleaned[1:]
	default:
		return "", invalidPhone(raw)
	}

	if len(cleaned) != 12 {
		return "", invalidPhone(raw)
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", invalidPhone(raw)
		}
	}
	return cleaned, nil
}

func invalidPhone(raw string) error {
	return pkgerrors.New(pkgerrors.CodeValidation,
		fmt.Sprintf("phone %q is not a valid Kenyan mobile number", raw))
}
