package hardware

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/elevarm/goelevarm/onboard/canbus"
	"go.uber.org/zap"
)

// eventually polls for a condition the node's listen goroutine satisfies
// asynchronously.
func eventually(cond func() bool) bool {
	for i := 0; i < 200; i++ {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

const testAddr = 0x051

// firmwareSim answers like a well-behaved node: acks every command and
// reports the given version string.
func firmwareSim(version string) func(msg canbus.CANMsg) *canbus.CANMsg {
	return func(msg canbus.CANMsg) *canbus.CANMsg {
		resp := &canbus.CANMsg{ID: msg.ID, Cmd: msg.Cmd}
		switch msg.Cmd {
		case CMD_VERSION:
			resp.Data = []byte(version)
		case CMD_SET_POS, CMD_HOME, CMD_STATUS_REQUEST:
			resp.Data = []byte{msg.Data[0]}
		}
		return resp
	}
}

func TestControlNodeHandshake(t *testing.T) {
	log := zap.NewNop().Sugar()

	Convey("a node within the version constraint is accepted", t, func() {
		bus := canbus.NewLoopback()
		bus.SetResponder(firmwareSim("0.1.4"))

		node, err := NewControlNode(bus, testAddr, log)
		So(err, ShouldBeNil)
		So(node.Version, ShouldEqual, "0.1.4")
	})

	Convey("a DEV build is let through", t, func() {
		bus := canbus.NewLoopback()
		bus.SetResponder(firmwareSim("DEV"))

		node, err := NewControlNode(bus, testAddr, log)
		So(err, ShouldBeNil)
		So(node.Version, ShouldEqual, "DEV")
	})

	Convey("an out-of-range version is refused", t, func() {
		bus := canbus.NewLoopback()
		bus.SetResponder(firmwareSim("0.2.0"))

		_, err := NewControlNode(bus, testAddr, log)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "require ~0.1.0")
	})

	Convey("a silent node exhausts the retries", t, func() {
		bus := canbus.NewLoopback()

		_, err := NewControlNode(bus, testAddr, log)
		So(err, ShouldNotBeNil)
		So(bus.Sent, ShouldHaveLength, CMD_MAX_RETRIES)
	})
}

func TestCANAxis(t *testing.T) {
	log := zap.NewNop().Sugar()

	newRig := func() (*canbus.Loopback, *CANAxis) {
		bus := canbus.NewLoopback()
		bus.SetResponder(firmwareSim("0.1.0"))

		node, err := NewControlNode(bus, testAddr, log)
		So(err, ShouldBeNil)

		axis, err := NewCANAxis(node, AxisParams{
			Name:    "elevator",
			Channel: 0,
			Scale:   0.01,
			Offset:  0,
			Min:     0,
			Max:     48,
		}, log)
		So(err, ShouldBeNil)

		return bus, axis
	}

	Convey("position broadcasts land in the cache in engineering units", t, func() {
		bus, axis := newRig()

		data := make([]byte, 5)
		data[0] = 0
		binary.LittleEndian.PutUint32(data[1:5], uint32(int32(3000)))
		bus.Deliver(canbus.CANMsg{ID: testAddr, Cmd: CMD_POS_UPDATE, Data: data})

		So(eventually(func() bool {
			return math.Abs(axis.GetPosition()-30.0) < 1e-9
		}), ShouldBeTrue)
	})

	Convey("status broadcasts carry limits, state and output", t, func() {
		bus, axis := newRig()

		bus.Deliver(canbus.CANMsg{
			ID:   testAddr,
			Cmd:  CMD_STATUS_UPDATE,
			Data: []byte{0, statusAtMin, byte(AxisKnown), 127},
		})

		So(eventually(axis.IsAtMinLimit), ShouldBeTrue)
		So(axis.IsAtMaxLimit(), ShouldBeFalse)
		So(axis.GetState(), ShouldEqual, AxisKnown)
		So(axis.GetOutput(), ShouldAlmostEqual, 1.0, 1e-9)
	})

	Convey("a homing request is acknowledged by the node", t, func() {
		bus, axis := newRig()

		So(axis.Home(), ShouldBeNil)
		last := bus.Sent[len(bus.Sent)-1]
		So(last.Cmd, ShouldEqual, uint16(CMD_HOME))
		So(last.Data, ShouldResemble, []byte{0})
	})

	Convey("broadcasts for the other channel are ignored", t, func() {
		bus, axis := newRig()

		bus.Deliver(canbus.CANMsg{
			ID:   testAddr,
			Cmd:  CMD_STATUS_UPDATE,
			Data: []byte{1, statusAtMax, byte(AxisKnown), 0},
		})

		// a channel 0 frame behind it proves the first one was routed past
		bus.Deliver(canbus.CANMsg{
			ID:   testAddr,
			Cmd:  CMD_STATUS_UPDATE,
			Data: []byte{0, statusAtMin, byte(AxisKnown), 0},
		})

		So(eventually(axis.IsAtMinLimit), ShouldBeTrue)
		So(axis.IsAtMaxLimit(), ShouldBeFalse)
	})
}
