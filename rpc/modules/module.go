package modules

// JSON-RPC error codes shared by every module surface.
const (
	codeInvalidParams = -32602
	codeUnauthorized  = -32001
	codeServerError   = -32000
)

// ModuleError carries both the JSON-RPC error code and the HTTP status
// the transport should respond with.
type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}
