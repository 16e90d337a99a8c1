package core

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion is used when a number carries no country prefix.
const DefaultPhoneRegion = "ID"

// NormalizePhone parses raw in the given region and returns it in E.164
// form. An empty input stays empty.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	p, err := libphonenumber.Parse(raw, region)
	if err != nil {
		return "", &ValidationError{Fields: map[string]string{"phoneNumber": "phone"}}
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", &ValidationError{Fields: map[string]string{"phoneNumber": "phone"}}
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}
