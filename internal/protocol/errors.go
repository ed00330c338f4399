package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrBusy            = "E_BUSY"

	// Request validation.
	ErrUnknownAgent = "E_UNKNOWN_AGENT"
	ErrUnknownArea  = "E_UNKNOWN_AREA"
	ErrBadGoal      = "E_BAD_GOAL"
	ErrBadEdit      = "E_BAD_EDIT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBusy:            {},
	ErrUnknownAgent:    {},
	ErrUnknownArea:     {},
	ErrBadGoal:         {},
	ErrBadEdit:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
