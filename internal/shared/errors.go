package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")
	ErrConfiguration = fmt.Errorf("provider credentials are not configured")

	// Provider errors
	ErrExternalProvider     = fmt.Errorf("external provider request failed")
	ErrRecommendationFailed = fmt.Errorf("recommendation failed")
	ErrServiceUnavailable   = fmt.Errorf("service unavailable")
	ErrUnknownProvider      = fmt.Errorf("unknown provider")

	// Store errors
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrUserNotFound     = fmt.Errorf("user not found")
	ErrUnauthorized     = fmt.Errorf("playlist not found or not owned by caller")

	// Export errors
	ErrNotConnected  = fmt.Errorf("spotify account not connected: connect your account first")
	ErrRefreshFailed = fmt.Errorf("token refresh failed")
	ErrInvalidState  = fmt.Errorf("invalid oauth state")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
