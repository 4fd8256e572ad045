// internal/domain/state.go
package domain

// ConnectionStatus is the market-data backend reachability as last probed.
type ConnectionStatus string

const (
	ConnectionUnknown   ConnectionStatus = "unknown"
	ConnectionTesting   ConnectionStatus = "testing"
	ConnectionConnected ConnectionStatus = "connected"
	ConnectionError     ConnectionStatus = "error"
)

// ConnectionState pairs the status with the failure detail when Status is error.
type ConnectionState struct {
	Status ConnectionStatus
	Error  string
}

// StreamingStatus reflects acknowledgement of start/stop commands by the remote
// capture service. Running means "accepted", not "ticks are flowing".
type StreamingStatus string

const (
	StreamingStopped  StreamingStatus = "stopped"
	StreamingStarting StreamingStatus = "starting"
	StreamingRunning  StreamingStatus = "running"
	StreamingStopping StreamingStatus = "stopping"
	StreamingError    StreamingStatus = "error"
)

// StreamingState is what the store exposes about server-side capture.
type StreamingState struct {
	Status  StreamingStatus
	Symbols []string
	Message string // remote acknowledgement message
	Error   string
}

// Clone copies the symbol slice.
func (s StreamingState) Clone() StreamingState {
	s.Symbols = append([]string(nil), s.Symbols...)
	return s
}
