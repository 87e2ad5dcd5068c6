package apperror

import "net/http"

var (
	ErrNotFound = New(
		CodeNotFound,
		"Resource not found",
		http.StatusNotFound,
	)

	ErrInternal = New(
		CodeInternalError,
		"An unexpected error occurred",
		http.StatusInternalServerError,
	)

	ErrInvalidInput = New(
		CodeInvalidInput,
		"The provided input is invalid",
		http.StatusBadRequest,
	)

	ErrRegistry = New(
		CodeRegistryError,
		"Identity registry could not be built",
		http.StatusUnprocessableEntity,
	)

	ErrValidation = New(
		CodeValidationError,
		"Mandatory source coverage or corroboration unmet",
		http.StatusUnprocessableEntity,
	)

	ErrConsistency = New(
		CodeConsistencyError,
		"Report summary diverges from verdict list",
		http.StatusInternalServerError,
	)
)

func RequiredField(field string) *AppError {
	return New(CodeInvalidInput, field+" is required", http.StatusBadRequest)
}

func InvalidField(field string) *AppError {
	return New(CodeInvalidInput, field+" is invalid", http.StatusBadRequest)
}
