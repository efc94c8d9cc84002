package authorization

import "errors"

// ErrForbidden is the only sentinel the HTTP layer maps; the invalid_*
// errors signal caller bugs and surface as internal errors.
var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
)
