package framing

// State is the decoder state of a framing session.
type State uint8

const (
	// StateIdle waits for a SOF byte.
	StateIdle State = iota
	// StateAwaitingData accumulates payload bytes until EOF.
	StateAwaitingData
	// StateEscaped takes the next byte literally.
	StateEscaped
	// StateError discards bytes until SOF or EOF.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingData:
		return "AwaitingData"
	case StateEscaped:
		return "Escaped"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}
