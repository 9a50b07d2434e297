package session

// State is the lifecycle state of the serial session
type State int

const (
	StateDetached State = iota
	StateAttaching
	StateAttached
	StateDetaching
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so states render as names in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
