package publish

import "fmt"

// Kind classifies why a publish was aborted.
type Kind string

const (
	// KindValidation: missing or malformed request fields. No remote calls made.
	KindValidation Kind = "ValidationError"
	// KindAuthorization: no caller, or the account is missing or owned by someone else.
	KindAuthorization Kind = "AuthorizationError"
	// KindUpload: the inline image could not be decoded or stored.
	KindUpload Kind = "UploadError"
	// KindRemoteAPI: the Graph API reported an error at create, status, or publish.
	KindRemoteAPI Kind = "RemoteApiError"
	// KindTimeout: polling ran out of attempts. The container may still finish
	// on Instagram's side after the caller gives up.
	KindTimeout Kind = "TimeoutError"
	// KindCanceled: the caller's context ended mid-flow.
	KindCanceled Kind = "CanceledError"
)

// Error is the structured failure carried by a Result. Message is meant to be
// shown to the end user as-is.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
