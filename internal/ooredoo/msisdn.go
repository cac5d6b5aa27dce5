package ooredoo

import (
	"fmt"
	"regexp"
)

var (
	localPattern         = regexp.MustCompile(`^05\d{8}$`)
	internationalPattern = regexp.MustCompile(`^213\d{9}$`)
)

// NormalizeMSISDN converts a local-format number ("05xxxxxxxx") to
// international form by rewriting the leading "0" to "213". Numbers already
// in international form pass through unchanged. Anything else is rejected.
func NormalizeMSISDN(phone string) (string, error) {
	switch {
	case localPattern.MatchString(phone):
		return "213" + phone[1:], nil
	case internationalPattern.MatchString(phone):
		return phone, nil
	default:
		return "", fmt.Errorf("%w: phone number must start with 05 or 213", ErrValidation)
	}
}
