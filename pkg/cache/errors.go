package cache

import "errors"

// ErrMiss indicates the requested key is not present in the cache.
var ErrMiss = errors.New("cache miss")
