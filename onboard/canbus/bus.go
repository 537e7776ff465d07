package canbus

// Bus is the transport the axis control nodes sit on. Implementations route
// inbound frames to the listener registered for the frame's node address.
type Bus interface {
	SendMsg(msg CANMsg) error
	AddListener(addr uint32, rx chan CANMsg)
}
