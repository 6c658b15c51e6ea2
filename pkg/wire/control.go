package wire

import "encoding/binary"

// ControlKind distinguishes the three link-state control-plane record
// types. Control records share the data-plane UDP socket with outer-header
// datagrams; the first byte on the wire tells them apart (priority digits
// '1'..'3' for data-plane packets, one of the bytes below for control).
type ControlKind byte

const (
	Hello ControlKind = 'H'
	Lsm   ControlKind = 'L'
	Trace ControlKind = 'T'
)

// IsControlKind reports whether the leading byte of a datagram identifies
// a control-plane record rather than a data-plane outer header.
func IsControlKind(b byte) bool {
	switch ControlKind(b) {
	case Hello, Lsm, Trace:
		return true
	default:
		return false
	}
}

// ControlMessage is the self-describing record used by HELLO, LSM and
// TRACE. Fields not relevant to Kind are zero-valued and not serialized.
type ControlMessage struct {
	Kind        ControlKind
	Source      Addr
	SeqNum      uint32 // Lsm
	TTL         uint32 // Lsm, Trace
	Neighbors   []Addr // Lsm
	Destination Addr   // Trace
}

func putAddr(buf []byte, a Addr) {
	binary.BigEndian.PutUint32(buf[0:4], a.IP)
	binary.BigEndian.PutUint16(buf[4:6], a.Port)
}

func getAddr(buf []byte) Addr {
	return Addr{IP: binary.BigEndian.Uint32(buf[0:4]), Port: binary.BigEndian.Uint16(buf[4:6])}
}

// EncodeControl serializes a control message. Every field the protocol
// needs is written at a fixed offset, the same way the outer and inner
// headers are, so producer and consumer never depend on any runtime
// serialization machinery agreeing across processes.
func EncodeControl(msg ControlMessage) []byte {
	switch msg.Kind {
	case Hello:
		buf := make([]byte, 1+6)
		buf[0] = byte(Hello)
		putAddr(buf[1:7], msg.Source)
		return buf
	case Lsm:
		buf := make([]byte, 1+6+4+4+2+6*len(msg.Neighbors))
		buf[0] = byte(Lsm)
		putAddr(buf[1:7], msg.Source)
		binary.BigEndian.PutUint32(buf[7:11], msg.SeqNum)
		binary.BigEndian.PutUint32(buf[11:15], msg.TTL)
		binary.BigEndian.PutUint16(buf[15:17], uint16(len(msg.Neighbors)))
		off := 17
		for _, n := range msg.Neighbors {
			putAddr(buf[off:off+6], n)
			off += 6
		}
		return buf
	case Trace:
		buf := make([]byte, 1+6+4+6)
		buf[0] = byte(Trace)
		putAddr(buf[1:7], msg.Source)
		binary.BigEndian.PutUint32(buf[7:11], msg.TTL)
		putAddr(buf[11:17], msg.Destination)
		return buf
	default:
		return nil
	}
}

// DecodeControl parses a buffer produced by EncodeControl. Returns
// ErrMalformed if the buffer is too short for its declared kind.
func DecodeControl(buf []byte) (ControlMessage, error) {
	if len(buf) < 1 {
		return ControlMessage{}, ErrMalformed
	}
	kind := ControlKind(buf[0])
	switch kind {
	case Hello:
		if len(buf) < 7 {
			return ControlMessage{}, ErrMalformed
		}
		return ControlMessage{Kind: Hello, Source: getAddr(buf[1:7])}, nil
	case Lsm:
		if len(buf) < 17 {
			return ControlMessage{}, ErrMalformed
		}
		seq := binary.BigEndian.Uint32(buf[7:11])
		ttl := binary.BigEndian.Uint32(buf[11:15])
		count := int(binary.BigEndian.Uint16(buf[15:17]))
		if len(buf) < 17+6*count {
			return ControlMessage{}, ErrMalformed
		}
		neighbors := make([]Addr, count)
		off := 17
		for i := 0; i < count; i++ {
			neighbors[i] = getAddr(buf[off : off+6])
			off += 6
		}
		return ControlMessage{
			Kind:      Lsm,
			Source:    getAddr(buf[1:7]),
			SeqNum:    seq,
			TTL:       ttl,
			Neighbors: neighbors,
		}, nil
	case Trace:
		if len(buf) < 17 {
			return ControlMessage{}, ErrMalformed
		}
		return ControlMessage{
			Kind:        Trace,
			Source:      getAddr(buf[1:7]),
			TTL:         binary.BigEndian.Uint32(buf[7:11]),
			Destination: getAddr(buf[11:17]),
		}, nil
	default:
		return ControlMessage{}, ErrMalformed
	}
}
