package engine

// Mode is the top-level state of a Session.
type Mode int

const (
	ModeIdle Mode = iota
	ModeSynchronizing
	ModeNetworkNotConnected
	ModeResettingFromError
	ModeNonRecoverableError
	ModeInternalError
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeSynchronizing:
		return "synchronizing"
	case ModeNetworkNotConnected:
		return "network-not-connected"
	case ModeResettingFromError:
		return "resetting-from-error"
	case ModeNonRecoverableError:
		return "non-recoverable-error"
	case ModeInternalError:
		return "internal-error"
	default:
		return "unknown"
	}
}

// IsError reports whether only ResetFromError can leave the mode.
func (m Mode) IsError() bool {
	return m == ModeNonRecoverableError || m == ModeInternalError
}
