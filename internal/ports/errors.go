package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these so callers can
// branch with errors.Is without importing adapter packages.
var (
	// General errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API key and signing key)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderRejected        = errors.New("order rejected by the exchange")
	ErrMarketNotFound       = errors.New("market not found on the exchange")
	ErrMarketNotSettled     = errors.New("market has not settled yet")

	// Signal errors
	ErrForecastOutOfRange  = errors.New("forecast probability outside the open interval (0, 1)")
	ErrInsufficientHistory = errors.New("not enough price history for signal estimation")

	// Storage errors
	ErrDuplicateEntry = errors.New("record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
	ErrLedgerAppend   = errors.New("ledger append failed")
)
