package hardware

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/elevarm/goelevarm/onboard/canbus"
	"go.uber.org/zap"
)

// staleAfter is how long an axis tolerates silence from its node before
// poking it with a status request.
const staleAfter = 250 * time.Millisecond

// status broadcast flag bits
const (
	statusAtMin = 1 << 0
	statusAtMax = 1 << 1
)

// CANAxis binds one node channel to a mechanism axis. Position and limit
// state are cached from node broadcasts so reads never touch the wire;
// setpoints are converted to firmware counts, clamped to travel bounds and
// sent as acknowledged commands.
type CANAxis struct {
	node   *ControlNode
	params AxisParams
	log    *zap.SugaredLogger

	mu       sync.RWMutex
	position float64
	atMin    bool
	atMax    bool
	state    AxisState
	output   float64
	lastSeen time.Time
	lastPoll time.Time
}

func NewCANAxis(node *ControlNode, params AxisParams, log *zap.SugaredLogger) (a *CANAxis, err error) {
	a = &CANAxis{
		node:   node,
		params: params,
		log:    log,
	}

	if err = node.attach(params.Channel, a); err != nil {
		return nil, err
	}

	return a, nil
}

// SetPosition clamps the commanded value to the travel bounds and stages it
// on the node. The acknowledgement is collected off the control tick.
func (a *CANAxis) SetPosition(value float64) {
	if value < a.params.Min {
		value = a.params.Min
	}
	if value > a.params.Max {
		value = a.params.Max
	}

	counts := int32(math.Round((value - a.params.Offset) / a.params.Scale))

	data := make([]byte, 5)
	data[0] = a.params.Channel
	binary.LittleEndian.PutUint32(data[1:5], uint32(counts))

	cmd := &nodeCommand{
		node: a.node,
		msg:  canbus.CANMsg{ID: a.node.addr, Cmd: CMD_SET_POS, Data: data},
	}

	go func() {
		if _, err := cmd.process(); err != nil {
			a.log.Errorw("setpoint not acknowledged",
				"axis", a.params.Name, "value", value, "err", err)
		}
	}()
}

func (a *CANAxis) GetPosition() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.position
}

func (a *CANAxis) IsAtMinLimit() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.atMin
}

func (a *CANAxis) IsAtMaxLimit() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.atMax
}

func (a *CANAxis) GetState() AxisState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *CANAxis) GetOutput() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.output
}

// Update nudges the node for fresh state when its broadcasts have gone
// quiet. The closed loop itself runs in firmware.
func (a *CANAxis) Update() {
	a.mu.Lock()
	now := time.Now()
	stale := now.Sub(a.lastSeen) > staleAfter && now.Sub(a.lastPoll) > staleAfter
	if stale {
		a.lastPoll = now
	}
	a.mu.Unlock()

	if !stale {
		return
	}

	cmd := &nodeCommand{
		node: a.node,
		msg: canbus.CANMsg{
			ID:   a.node.addr,
			Cmd:  CMD_STATUS_REQUEST,
			Data: []byte{a.params.Channel},
		},
	}

	go func() {
		if _, err := cmd.process(); err != nil {
			a.log.Warnw("status request not acknowledged",
				"axis", a.params.Name, "err", err)
		}
	}()
}

// Home starts the firmware homing sweep for this channel.
func (a *CANAxis) Home() error {
	cmd := &nodeCommand{
		node: a.node,
		msg:  canbus.CANMsg{ID: a.node.addr, Cmd: CMD_HOME, Data: []byte{a.params.Channel}},
	}
	_, err := cmd.process()
	return err
}

func (a *CANAxis) handleBroadcast(msg canbus.CANMsg) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastSeen = time.Now()

	switch msg.Cmd {
	case CMD_POS_UPDATE:
		if len(msg.Data) < 5 {
			return
		}
		counts := int32(binary.LittleEndian.Uint32(msg.Data[1:5]))
		a.position = float64(counts)*a.params.Scale + a.params.Offset

	case CMD_STATUS_UPDATE:
		if len(msg.Data) < 4 {
			return
		}
		flags := msg.Data[1]
		a.atMin = flags&statusAtMin != 0
		a.atMax = flags&statusAtMax != 0
		a.state = AxisState(msg.Data[2])
		a.output = float64(int8(msg.Data[3])) / 127.0
	}
}
