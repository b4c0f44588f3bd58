package model

// Protocol enumerates the connection-table protocols the Connection Tracker
// understands.
type Protocol uint8

const (
	ProtoTCP4 Protocol = iota
	ProtoTCP6
	ProtoUDP4
	ProtoUDP6
)

func (p Protocol) String() string {
	switch p {
	case ProtoTCP4:
		return "TCP4"
	case ProtoTCP6:
		return "TCP6"
	case ProtoUDP4:
		return "UDP4"
	case ProtoUDP6:
		return "UDP6"
	default:
		return "UNKNOWN"
	}
}

// IsTCP reports whether the protocol is one of the TCP variants.
func (p Protocol) IsTCP() bool { return p == ProtoTCP4 || p == ProtoTCP6 }

// State is a connection state. TCP uses the full kernel-like state set; UDP
// uses only StateListening/StateEstablished (synthetic, per §3).
type State uint8

const (
	StateUnknown State = iota
	StateEstablished
	StateListening
	StateCloseWait
	StateFinWait1
	StateFinWait2
	StateClosing
	StateLastAck
)

func (s State) String() string {
	switch s {
	case StateEstablished:
		return "ESTABLISHED"
	case StateListening:
		return "LISTENING"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateFinWait1:
		return "FIN_WAIT1"
	case StateFinWait2:
		return "FIN_WAIT2"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST_ACK"
	default:
		return "UNKNOWN"
	}
}

// ConnectionEntry is one row of the OS socket table after normalization.
type ConnectionEntry struct {
	Protocol    Protocol
	LocalAddr   string
	LocalPort   uint16
	RemoteAddr  string // empty for listeners
	RemotePort  uint16 // 0 for listeners
	HasRemote   bool
	State       State
	PID         int32
	HasPID      bool
	ProcName    string
}

// UdpPortMapping is a remembered UDP flow or listener, owned by the
// Connection Tracker and persisted across sync cycles (the OS socket table
// carries no session state for UDP).
type UdpPortMapping struct {
	LocalAddr  string
	LocalPort  uint16
	PID        int32
	ProcName   string
	LastSeenMs int64
	IsListener bool
}
