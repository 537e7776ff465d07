package hardware

import (
	"errors"
	"sync"
	"time"

	"github.com/elevarm/goelevarm/onboard/canbus"
)

const (
	CMD_ALLSTOP         = 0x0000
	CMD_SET_POS         = 0x0010
	CMD_HOME            = 0x0020
	CMD_UPDATE_INTERVAL = 0x0030
	CMD_STATUS_REQUEST  = 0x0040
	CMD_POS_UPDATE      = 0x0100
	CMD_STATUS_UPDATE   = 0x0110
	CMD_VERSION         = 0x03E0

	CMD_MAX_RETRIES = 5
	CMD_TIMEOUT     = 5 * time.Millisecond
)

var (
	ErrMaxRetries = errors.New("CMD_MAX_RETRIES reached without an acknowledgement")
	ErrSendAbort  = errors.New("send has been aborted")
)

// ackKey maps a frame to the in-flight command it acknowledges. Channelled
// commands fold the channel into the spare low nibble of the command word so
// both axes of a node can have the same command outstanding at once.
func ackKey(msg canbus.CANMsg) uint16 {
	switch msg.Cmd {
	case CMD_SET_POS, CMD_HOME, CMD_STATUS_REQUEST:
		if len(msg.Data) > 0 {
			return msg.Cmd | uint16(msg.Data[0]&0x0F)
		}
	}
	return msg.Cmd
}

// nodeCommand is a single command/acknowledge exchange with node firmware.
// Unacknowledged sends retry up to CMD_MAX_RETRIES, CMD_TIMEOUT apart.
type nodeCommand struct {
	node *ControlNode
	msg  canbus.CANMsg

	ack       chan canbus.CANMsg
	abort     chan struct{}
	abortOnce sync.Once
}

func (c *nodeCommand) key() uint16 {
	return ackKey(c.msg)
}

// Abort releases a process() call that is still waiting on the node.
func (c *nodeCommand) Abort() {
	c.abortOnce.Do(func() {
		if c.abort != nil {
			close(c.abort)
		}
	})
}

func (c *nodeCommand) process() (resp canbus.CANMsg, err error) {
	c.node.pending.Add(1)
	defer c.node.pending.Done()

	c.ack = make(chan canbus.CANMsg, 1)
	c.abort = make(chan struct{})

	c.node.registerCmd(c)
	defer c.node.unregisterCmd(c)

	for attempt := 0; attempt < CMD_MAX_RETRIES; attempt++ {
		if err = c.node.bus.SendMsg(c.msg); err != nil {
			return
		}

		select {
		case resp = <-c.ack:
			return resp, nil
		case <-c.abort:
			return resp, ErrSendAbort
		case <-time.After(CMD_TIMEOUT):
			// resend
		}
	}

	return resp, ErrMaxRetries
}
