package apperror

const (
	// Client errors (4xx)
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInvalidState = "INVALID_STATE"

	// Engine errors
	CodeRegistryError    = "REGISTRY_ERROR"
	CodeIngestionWarning = "INGESTION_WARNING"
	CodeAmbiguousLinkage = "AMBIGUOUS_LINKAGE"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeConsistencyError = "CONSISTENCY_ERROR"

	// Server errors (5xx)
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)
