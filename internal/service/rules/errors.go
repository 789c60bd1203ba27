package rules

import "errors"

var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrRuleInUse    = errors.New("rule has slots with bookings")
	ErrForbidden    = errors.New("rule belongs to another vendor")
)
