package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/elevarm/goelevarm/onboard/canbus"
	"github.com/elevarm/goelevarm/onboard/hardware"
)

// Bench tool: fire a status request at a drive node and dump whatever comes
// back on its address for a second.
func main() {
	ifname := flag.String("if", "can0", "CAN interface")
	addr := flag.Uint("addr", 0x051, "node address")
	flag.Parse()

	fmt.Printf("Opening listener on %s\n", *ifname)
	bus, err := canbus.NewCANBus(*ifname)
	if err != nil {
		panic(err)
	}

	rxc := make(chan canbus.CANMsg, 16)
	bus.AddListener(uint32(*addr), rxc)

	go func() {
		for msg := range rxc {
			fmt.Printf("0x%04x \t0x%04x \t[%d] \t", msg.ID, msg.Cmd, len(msg.Data))
			for _, b := range msg.Data {
				fmt.Printf("%02x ", b)
			}
			fmt.Printf("\n")
		}
	}()

	err = bus.SendMsg(canbus.CANMsg{
		ID:   uint32(*addr),
		Cmd:  hardware.CMD_STATUS_REQUEST,
		Data: []byte{0},
	})
	if err != nil {
		panic(err)
	}

	time.Sleep(1 * time.Second)
}
