package reactorcore

// Mode is a bitfield over the kernel-visible readiness classes a socket
// may be registered for.
type Mode uint8

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	ModeError
)

func (m Mode) has(flag Mode) bool { return m&flag != 0 }
