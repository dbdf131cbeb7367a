package catalog

import "fmt"

// AuthError means the remote service rejected the bearer token.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("catalog unauthorized (status %d): %s", e.Status, e.Message)
}

// NotFoundError means the requested resource does not exist remotely.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return "catalog resource not found: " + e.Resource
}

// RemoteError covers every other non-2xx answer.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("catalog request failed (status %d): %s", e.Status, e.Message)
}
