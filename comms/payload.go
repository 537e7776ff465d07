package comms

import (
	"github.com/elevarm/goelevarm/onboard"
)

// StatePayload is one telemetry frame on the wire, stamped with the send
// time in unix milliseconds so dashboards can spot a stalled feed.
type StatePayload struct {
	onboard.Telemetry
	Timestamp int64 `json:"timestamp"`
}

// Cmd is an inbound operator command. Name carries the setpoint for move
// commands and is ignored otherwise.
type Cmd struct {
	Cmd  string `json:"cmd"`
	Name string `json:"name"`
}
