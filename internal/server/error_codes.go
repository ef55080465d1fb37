package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument  = 1000
	ErrCodeInvalidJSON      = 1001
	ErrCodeRequestTooLarge  = 1002
	ErrCodeInvalidQuery     = 1003
	ErrCodeInvalidHash      = 1004
	ErrCodeInvalidAction    = 1005
	ErrCodeMissingRequired  = 1009
	ErrCodeInvalidDecision  = 1010
	ErrCodeInvalidPairCount = 1011

	// Domain state (2xxx)
	ErrCodeFileNotFound        = 2001
	ErrCodeConflict            = 2102
	ErrCodeInvalidRelationship = 2103

	// Auth & limits (3xxx)
	ErrCodeUnauthorized         = 3001
	ErrCodeForbidden            = 3002
	ErrCodeResourceExhausted    = 3003
	ErrCodeConfirmationRequired = 3004

	// Internal/system (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002
	ErrCodeExportFailed = 4003
	ErrCodeCorrupt      = 4006
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeFileNotFound
	case 409:
		return ErrCodeConflict
	case 422:
		return ErrCodeInvalidRelationship
	case 428:
		return ErrCodeConfirmationRequired
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
