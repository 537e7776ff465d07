package canbus

import (
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// CANBus is a raw SocketCAN connection to the interface the control nodes
// hang off. Loopback is disabled so the reader only ever sees node traffic.
type CANBus struct {
	fd   int
	tx   chan []byte
	open bool

	mu        sync.RWMutex
	listeners map[uint32]chan CANMsg
}

func NewCANBus(ifname string) (bus *CANBus, err error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return
	}

	bus = &CANBus{
		tx:        make(chan []byte, 16),
		listeners: make(map[uint32]chan CANMsg),
	}

	bus.fd, err = unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, err
	}

	unix.SetsockoptInt(bus.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_LOOPBACK, 0)

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err = unix.Bind(bus.fd, addr); err != nil {
		unix.Close(bus.fd)
		return nil, err
	}

	bus.open = true
	go bus.reader()
	go bus.writer()

	return bus, nil
}

func (c *CANBus) AddListener(addr uint32, rx chan CANMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[addr] = rx
}

func (c *CANBus) SendMsg(msg CANMsg) error {
	raw, err := msg.MarshalFrame()
	if err != nil {
		return err
	}
	c.tx <- raw
	return nil
}

func (c *CANBus) Close() error {
	c.open = false
	return unix.Close(c.fd)
}

func (c *CANBus) writer() {
	for c.open {
		raw := <-c.tx
		unix.Write(c.fd, raw)
	}
}

func (c *CANBus) reader() {
	for c.open {
		raw := make([]byte, frameLength)
		n, err := unix.Read(c.fd, raw)
		if err != nil || n < frameLength {
			continue
		}

		msg, err := UnmarshalFrame(raw)
		if err != nil {
			continue
		}

		c.mu.RLock()
		rx, ok := c.listeners[msg.ID]
		c.mu.RUnlock()
		if !ok {
			continue
		}

		// a stalled listener must not wedge the bus reader
		select {
		case rx <- *msg:
		default:
		}
	}
}
