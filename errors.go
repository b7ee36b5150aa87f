package dctype

import "errors"

// ErrFrozen indicates an attempt to reconfigure a domain after it has been
// frozen. Registration after freeze is not an error condition - it is
// reported through the boolean return of the register functions - but
// changing a domain's fallback is a configuration mistake, so it gets an
// explicit error the caller can check with errors.Is.
var ErrFrozen = errors.New("dctype: domain is frozen")
