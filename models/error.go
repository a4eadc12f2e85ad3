package models

// ErrorResponse is the body the API returns with a failure status.
type ErrorResponse struct {
	Message string        `json:"message"`
	Errors  []ErrorDetail `json:"errors"`
}

type ErrorDetail struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Code   int    `json:"code"`
}
