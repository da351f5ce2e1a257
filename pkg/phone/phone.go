package phone

import (
	"github.com/nyaruka/phonenumbers"

	apperrors "github.com/musicshare/api/internal/errors"
)

// Normalize canonicalizes raw phone input into E.164 form (country code plus
// subscriber number, no separators). All comparison, storage and lookup of
// phone numbers goes through this; raw user input is never compared directly.
func Normalize(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrInvalidPhoneNumber, err)
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", apperrors.ErrInvalidPhoneNumber
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
