package transport

import "fmt"

// Close status codes.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseUnhandledType   = 1003
	CloseNoStatus        = 1005
	CloseAbnormal        = 1006
	CloseInvalidPayload  = 1007
	ClosePolicyViolation = 1008
	CloseMessageTooBig   = 1009
)

// CloseClass groups close codes by what they mean for recovery.
type CloseClass int

const (
	// ClassClean is an intentional close by either side.
	ClassClean CloseClass = iota
	// ClassProtocol means the peer rejected what it received.
	ClassProtocol
	// ClassAbnormal covers drops without a usable status.
	ClassAbnormal
)

func (c CloseClass) String() string {
	switch c {
	case ClassClean:
		return "clean"
	case ClassProtocol:
		return "protocol"
	case ClassAbnormal:
		return "abnormal"
	}
	return fmt.Sprintf("CloseClass(%d)", int(c))
}

// ClassifyClose maps a close status code to its class.
func ClassifyClose(code int) CloseClass {
	switch code {
	case CloseNormal, CloseGoingAway:
		return ClassClean
	case CloseProtocolError, CloseUnhandledType, CloseInvalidPayload, ClosePolicyViolation, CloseMessageTooBig:
		return ClassProtocol
	}
	return ClassAbnormal
}

// CloseText returns a short name for code.
func CloseText(code int) string {
	switch code {
	case CloseNormal:
		return "normal"
	case CloseGoingAway:
		return "going away"
	case CloseProtocolError:
		return "protocol error"
	case CloseUnhandledType:
		return "unhandled type"
	case CloseNoStatus:
		return "no status"
	case CloseAbnormal:
		return "abnormal closure"
	case CloseInvalidPayload:
		return "invalid payload"
	case ClosePolicyViolation:
		return "policy violation"
	case CloseMessageTooBig:
		return "message too big"
	}
	return fmt.Sprintf("code %d", code)
}
