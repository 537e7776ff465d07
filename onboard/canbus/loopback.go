package canbus

import "sync"

// Loopback is an in-process bus used by tests and bench rigs. Outbound
// frames are run through the same wire codec as the real bus and handed to
// an optional responder standing in for node firmware; whatever the
// responder answers is routed back to the registered listener.
type Loopback struct {
	mu        sync.RWMutex
	listeners map[uint32]chan CANMsg
	responder func(msg CANMsg) *CANMsg

	Sent []CANMsg // every frame sent, in order
}

func NewLoopback() *Loopback {
	return &Loopback{
		listeners: make(map[uint32]chan CANMsg),
	}
}

// SetResponder installs the fake firmware. Return nil to stay silent.
func (l *Loopback) SetResponder(fn func(msg CANMsg) *CANMsg) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responder = fn
}

func (l *Loopback) AddListener(addr uint32, rx chan CANMsg) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners[addr] = rx
}

func (l *Loopback) SendMsg(msg CANMsg) error {
	raw, err := msg.MarshalFrame()
	if err != nil {
		return err
	}
	decoded, err := UnmarshalFrame(raw)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.Sent = append(l.Sent, *decoded)
	responder := l.responder
	l.mu.Unlock()

	if responder == nil {
		return nil
	}

	resp := responder(*decoded)
	if resp == nil {
		return nil
	}

	l.Deliver(*resp)
	return nil
}

// Deliver pushes a frame at the listener for its address, as though a node
// had put it on the wire.
func (l *Loopback) Deliver(msg CANMsg) {
	l.mu.RLock()
	rx, ok := l.listeners[msg.ID]
	l.mu.RUnlock()
	if !ok {
		return
	}
	rx <- msg
}
