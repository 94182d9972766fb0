package status

import "fmt"

// Code is the closed set of outcomes the gateway reports for write-path
// operations. Values mirror the gRPC codes the wire layer maps them to.
type Code int

const (
	Ok Code = iota
	InvalidArgument
	NotFound
	PermissionDenied
	Internal
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "ok"
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	case Internal:
		return "internal"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Status pairs a code with an optional human-readable message. Services
// return Status values for expected domain outcomes instead of errors.
type Status struct {
	Code    Code
	Message string
}

func OK() Status {
	return Status{Code: Ok}
}

func Errorf(code Code, format string, args ...any) Status {
	return Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (s Status) IsOK() bool {
	return s.Code == Ok
}

func (s Status) String() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return s.Code.String() + ": " + s.Message
}
