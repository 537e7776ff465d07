package canbus

import (
	"encoding/binary"
	"errors"
)

const (
	// frameLength is the size of a raw socketcan can_frame.
	frameLength = 16

	// maxPayload is the space left in a frame once the command bytes are in.
	maxPayload = 6

	canEFFFlag = 0x80000000
	canEFFMask = 0x1fffffff
)

var (
	ErrPayloadTooLong = errors.New("payload length exceeds 6 bytes")
	ErrFrameTooShort  = errors.New("frame shorter than a can_frame")
	ErrFrameEmpty     = errors.New("frame does not carry a command")
)

// CANMsg is a single command frame exchanged with an axis control node.
// The command rides in the first two data bytes, leaving up to six bytes of
// payload within a standard 8 byte CAN data section. All node traffic uses
// extended frames; the identifier is the node address.
type CANMsg struct {
	ID   uint32 // address of the node this frame belongs to
	Cmd  uint16 // command or broadcast type
	Data []byte // payload, up to six bytes
}

// MarshalFrame packs the message into a raw 16 byte can_frame suitable for
// writing straight to a SocketCAN file descriptor.
func (msg *CANMsg) MarshalFrame() (raw []byte, err error) {
	if len(msg.Data) > maxPayload {
		return nil, ErrPayloadTooLong
	}

	raw = make([]byte, frameLength)

	binary.LittleEndian.PutUint32(raw[0:4], (msg.ID&canEFFMask)|canEFFFlag)
	raw[4] = byte(len(msg.Data) + 2) // DLC includes the command bytes

	binary.LittleEndian.PutUint16(raw[8:10], msg.Cmd)
	copy(raw[10:], msg.Data)

	return raw, nil
}

// UnmarshalFrame decodes a raw can_frame back into a CANMsg.
func UnmarshalFrame(raw []byte) (msg *CANMsg, err error) {
	if len(raw) < frameLength {
		return nil, ErrFrameTooShort
	}

	dlc := int(raw[4])
	if dlc < 2 || dlc > maxPayload+2 {
		return nil, ErrFrameEmpty
	}

	msg = &CANMsg{
		ID:  binary.LittleEndian.Uint32(raw[0:4]) & canEFFMask,
		Cmd: binary.LittleEndian.Uint16(raw[8:10]),
	}

	if dlc > 2 {
		msg.Data = make([]byte, dlc-2)
		copy(msg.Data, raw[10:8+dlc])
	}

	return msg, nil
}
