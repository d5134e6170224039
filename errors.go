package instagram

import "errors"

var (
	ErrRateLimited       = errors.New("instagram: rate limited")
	ErrNotFound          = errors.New("instagram: not found")
	ErrAuthRequired      = errors.New("instagram: authentication required")
	ErrBadCredentials    = errors.New("instagram: bad credentials")
	ErrTwoFactorRequired = errors.New("instagram: two-factor code required")
	ErrChallengeRequired = errors.New("instagram: challenge required")
	ErrInvalidURL        = errors.New("instagram: invalid media url")
	ErrBrowserNotReady   = errors.New("instagram: browser not initialized")
	ErrInvalidResponse   = errors.New("instagram: invalid response")
)
