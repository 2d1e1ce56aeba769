package engine

import (
	"errors"
	"fmt"
)

// ErrConfig marks configuration errors. They fail fast and are never retried.
var ErrConfig = errors.New("loader configuration error")

// Configuration error variants; all of them satisfy errors.Is(err, ErrConfig).
var (
	ErrQueryNameRequired = fmt.Errorf("%w: query name is required when caching is enabled", ErrConfig)
	ErrNoQuery           = fmt.Errorf("%w: query or query name must be provided", ErrConfig)
	ErrQueryNotFound     = fmt.Errorf("%w: unable to read query file", ErrConfig)
)
