package hardware

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver"
	"github.com/elevarm/goelevarm/onboard/canbus"
	"go.uber.org/zap"
)

// NODE_VERSION is the firmware constraint a node must satisfy before any
// axis traffic is allowed.
const NODE_VERSION = "~0.1.0"

// ControlNode is one motor controller board on the bus, driving up to two
// axis channels. It owns the acknowledgement bookkeeping for commands and
// fans unsolicited position/status broadcasts out to the attached axes.
type ControlNode struct {
	addr uint32
	bus  canbus.Bus
	log  *zap.SugaredLogger

	cmdLock  sync.Mutex
	inFlight map[uint16]*nodeCommand
	pending  sync.WaitGroup

	rx   chan canbus.CANMsg
	axes [2]*CANAxis

	Version string
}

func NewControlNode(bus canbus.Bus, addr uint32, log *zap.SugaredLogger) (n *ControlNode, err error) {
	n = &ControlNode{
		addr:     addr,
		bus:      bus,
		log:      log,
		inFlight: make(map[uint16]*nodeCommand),
		rx:       make(chan canbus.CANMsg, 16),
	}

	bus.AddListener(addr, n.rx)
	go n.listen()

	// firmware handshake before anything moves
	cmd := &nodeCommand{node: n, msg: canbus.CANMsg{ID: addr, Cmd: CMD_VERSION}}
	resp, err := cmd.process()
	if err != nil {
		return nil, fmt.Errorf("node 0x%X did not answer version handshake: %w", addr, err)
	}

	n.Version = string(resp.Data)
	if n.Version == "DEV" {
		// direct dev build, allowed through for bench work
		n.log.Warnw("node is running a dev firmware build", "addr", addr)
		return n, nil
	}

	ver, err := semver.NewVersion(n.Version)
	if err != nil {
		return nil, fmt.Errorf("node 0x%X reported version %q: %w", addr, n.Version, err)
	}

	constraint, err := semver.NewConstraint(NODE_VERSION)
	if err != nil {
		return nil, err
	}

	if !constraint.Check(ver) {
		return nil, fmt.Errorf("unable to use node 0x%X: received version %s - require %s", addr, n.Version, NODE_VERSION)
	}

	return n, nil
}

// Addr returns the node's bus address.
func (n *ControlNode) Addr() uint32 {
	return n.addr
}

// AllStop aborts anything in flight and drops both channels to zero output.
func (n *ControlNode) AllStop() error {
	n.abortPending()

	cmd := &nodeCommand{node: n, msg: canbus.CANMsg{ID: n.addr, Cmd: CMD_ALLSTOP}}
	_, err := cmd.process()
	return err
}

// SetUpdateInterval asks the node to broadcast position/status frames at the
// given period, normally matched to the control tick.
func (n *ControlNode) SetUpdateInterval(period time.Duration) error {
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, uint16(period.Milliseconds()))

	cmd := &nodeCommand{node: n, msg: canbus.CANMsg{ID: n.addr, Cmd: CMD_UPDATE_INTERVAL, Data: data}}
	_, err := cmd.process()
	return err
}

func (n *ControlNode) attach(channel uint8, axis *CANAxis) error {
	if int(channel) >= len(n.axes) {
		return fmt.Errorf("node 0x%X has no channel %d", n.addr, channel)
	}
	if n.axes[channel] != nil {
		return fmt.Errorf("node 0x%X channel %d is already bound", n.addr, channel)
	}
	n.axes[channel] = axis
	return nil
}

func (n *ControlNode) listen() {
	for msg := range n.rx {
		switch msg.Cmd {
		case CMD_POS_UPDATE, CMD_STATUS_UPDATE:
			n.routeBroadcast(msg)
		default:
			n.routeAck(msg)
		}
	}
}

func (n *ControlNode) routeBroadcast(msg canbus.CANMsg) {
	if len(msg.Data) == 0 {
		return
	}

	channel := msg.Data[0] & 0x0F
	if int(channel) >= len(n.axes) || n.axes[channel] == nil {
		return
	}

	n.axes[channel].handleBroadcast(msg)
}

func (n *ControlNode) routeAck(msg canbus.CANMsg) {
	n.cmdLock.Lock()
	cmd := n.inFlight[ackKey(msg)]
	n.cmdLock.Unlock()

	if cmd == nil {
		n.log.Debugw("unexpected ack", "addr", n.addr, "cmd", msg.Cmd)
		return
	}

	select {
	case cmd.ack <- msg:
	default:
	}
}

func (n *ControlNode) registerCmd(cmd *nodeCommand) {
	n.cmdLock.Lock()
	defer n.cmdLock.Unlock()
	n.inFlight[cmd.key()] = cmd
}

func (n *ControlNode) unregisterCmd(cmd *nodeCommand) {
	n.cmdLock.Lock()
	defer n.cmdLock.Unlock()
	delete(n.inFlight, cmd.key())
}

func (n *ControlNode) abortPending() {
	n.cmdLock.Lock()
	defer n.cmdLock.Unlock()
	for _, cmd := range n.inFlight {
		cmd.Abort()
	}
}
