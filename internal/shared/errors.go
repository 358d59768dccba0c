package shared

import "errors"

// ErrTenantMissing occurs when a request carries no tenant header.
var ErrTenantMissing = errors.New("tenant header missing")
