package daemon

import "fmt"

// ErrorCode is a resolver daemon status code. Values follow dns_sd.h.
type ErrorCode int32

// Daemon error codes.
const (
	ErrCodeNoError                   ErrorCode = 0
	ErrCodeUnknown                   ErrorCode = -65537
	ErrCodeNoSuchName                ErrorCode = -65538
	ErrCodeNoMemory                  ErrorCode = -65539
	ErrCodeBadParam                  ErrorCode = -65540
	ErrCodeBadReference              ErrorCode = -65541
	ErrCodeBadState                  ErrorCode = -65542
	ErrCodeBadFlags                  ErrorCode = -65543
	ErrCodeUnsupported               ErrorCode = -65544
	ErrCodeNotInitialized            ErrorCode = -65545
	ErrCodeAlreadyRegistered         ErrorCode = -65547
	ErrCodeNameConflict              ErrorCode = -65548
	ErrCodeInvalid                   ErrorCode = -65549
	ErrCodeFirewall                  ErrorCode = -65550
	ErrCodeIncompatible              ErrorCode = -65551
	ErrCodeBadInterfaceIndex         ErrorCode = -65552
	ErrCodeRefused                   ErrorCode = -65553
	ErrCodeNoSuchRecord              ErrorCode = -65554
	ErrCodeNoAuth                    ErrorCode = -65555
	ErrCodeNoSuchKey                 ErrorCode = -65556
	ErrCodeNATTraversal              ErrorCode = -65557
	ErrCodeDoubleNAT                 ErrorCode = -65558
	ErrCodeBadTime                   ErrorCode = -65559
	ErrCodeBadSig                    ErrorCode = -65560
	ErrCodeBadKey                    ErrorCode = -65561
	ErrCodeTransient                 ErrorCode = -65562
	ErrCodeServiceNotRunning         ErrorCode = -65563
	ErrCodeNATPortMappingUnsupported ErrorCode = -65564
	ErrCodeNATPortMappingDisabled    ErrorCode = -65565
	ErrCodeNoRouter                  ErrorCode = -65566
	ErrCodePollingMode               ErrorCode = -65567
	ErrCodeTimeout                   ErrorCode = -65568
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeNoError:                   "NO_ERROR",
	ErrCodeUnknown:                   "UNKNOWN",
	ErrCodeNoSuchName:                "NO_SUCH_NAME",
	ErrCodeNoMemory:                  "NO_MEMORY",
	ErrCodeBadParam:                  "BAD_PARAM",
	ErrCodeBadReference:              "BAD_REFERENCE",
	ErrCodeBadState:                  "BAD_STATE",
	ErrCodeBadFlags:                  "BAD_FLAGS",
	ErrCodeUnsupported:               "UNSUPPORTED",
	ErrCodeNotInitialized:            "NOT_INITIALIZED",
	ErrCodeAlreadyRegistered:         "ALREADY_REGISTERED",
	ErrCodeNameConflict:              "NAME_CONFLICT",
	ErrCodeInvalid:                   "INVALID",
	ErrCodeFirewall:                  "FIREWALL",
	ErrCodeIncompatible:              "INCOMPATIBLE",
	ErrCodeBadInterfaceIndex:         "BAD_INTERFACE_INDEX",
	ErrCodeRefused:                   "REFUSED",
	ErrCodeNoSuchRecord:              "NO_SUCH_RECORD",
	ErrCodeNoAuth:                    "NO_AUTH",
	ErrCodeNoSuchKey:                 "NO_SUCH_KEY",
	ErrCodeNATTraversal:              "NAT_TRAVERSAL",
	ErrCodeDoubleNAT:                 "DOUBLE_NAT",
	ErrCodeBadTime:                   "BAD_TIME",
	ErrCodeBadSig:                    "BAD_SIG",
	ErrCodeBadKey:                    "BAD_KEY",
	ErrCodeTransient:                 "TRANSIENT",
	ErrCodeServiceNotRunning:         "SERVICE_NOT_RUNNING",
	ErrCodeNATPortMappingUnsupported: "NAT_PORT_MAPPING_UNSUPPORTED",
	ErrCodeNATPortMappingDisabled:    "NAT_PORT_MAPPING_DISABLED",
	ErrCodeNoRouter:                  "NO_ROUTER",
	ErrCodePollingMode:               "POLLING_MODE",
	ErrCodeTimeout:                   "TIMEOUT",
}

// String returns the code name.
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERROR(%d)", int32(c))
}

// Error is a failed daemon call.
type Error struct {
	// Op names the daemon operation, e.g. "register" or "query".
	Op string

	// Code is the native status code.
	Code ErrorCode
}

func (e *Error) Error() string {
	return fmt.Sprintf("daemon %s: %s (%d)", e.Op, e.Code, int32(e.Code))
}

// Is matches any *Error with the same code, so callers can compare against
// the sentinels below regardless of Op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Op == "" || t.Op == e.Op)
}

// NewError returns an *Error, or nil for ErrCodeNoError.
func NewError(op string, code ErrorCode) error {
	if code == ErrCodeNoError {
		return nil
	}
	return &Error{Op: op, Code: code}
}

// Sentinels for errors.Is.
var (
	ErrBadReference      = &Error{Code: ErrCodeBadReference}
	ErrBadParam          = &Error{Code: ErrCodeBadParam}
	ErrUnsupported       = &Error{Code: ErrCodeUnsupported}
	ErrNoSuchRecord      = &Error{Code: ErrCodeNoSuchRecord}
	ErrServiceNotRunning = &Error{Code: ErrCodeServiceNotRunning}
)
