package wire

import "encoding/binary"

// Encode serializes the outer header, inner header and payload into a
// single datagram. InnerLength is recomputed from InnerLen+len(payload) so
// callers never have to keep it in sync by hand.
func Encode(outer OuterHeader, inner InnerHeader, payload []byte) []byte {
	outer.InnerLength = uint32(InnerLen + len(payload))

	buf := make([]byte, OuterLen+InnerLen+len(payload))

	buf[0] = outer.Priority
	binary.BigEndian.PutUint32(buf[1:5], outer.Src.IP)
	binary.BigEndian.PutUint16(buf[5:7], outer.Src.Port)
	binary.BigEndian.PutUint32(buf[7:11], outer.Dst.IP)
	binary.BigEndian.PutUint16(buf[11:13], outer.Dst.Port)
	binary.BigEndian.PutUint32(buf[13:17], outer.InnerLength)

	buf[17] = inner.Type
	binary.BigEndian.PutUint32(buf[18:22], inner.Sequence)
	binary.BigEndian.PutUint32(buf[22:26], inner.LengthOrWindow)

	copy(buf[26:], payload)
	return buf
}

// Decode parses a datagram produced by Encode. It returns ErrMalformed if
// the buffer is too short for the fixed headers or if the declared
// inner_length would overrun the buffer.
func Decode(buf []byte) (OuterHeader, InnerHeader, []byte, error) {
	if len(buf) < OuterLen+InnerLen {
		return OuterHeader{}, InnerHeader{}, nil, ErrMalformed
	}

	var outer OuterHeader
	outer.Priority = buf[0]
	outer.Src.IP = binary.BigEndian.Uint32(buf[1:5])
	outer.Src.Port = binary.BigEndian.Uint16(buf[5:7])
	outer.Dst.IP = binary.BigEndian.Uint32(buf[7:11])
	outer.Dst.Port = binary.BigEndian.Uint16(buf[11:13])
	outer.InnerLength = binary.BigEndian.Uint32(buf[13:17])

	if int64(OuterLen)+int64(outer.InnerLength) > int64(len(buf)) || outer.InnerLength < InnerLen {
		return OuterHeader{}, InnerHeader{}, nil, ErrMalformed
	}

	var inner InnerHeader
	inner.Type = buf[17]
	inner.Sequence = binary.BigEndian.Uint32(buf[18:22])
	inner.LengthOrWindow = binary.BigEndian.Uint32(buf[22:26])

	payloadLen := int(outer.InnerLength) - InnerLen
	payload := make([]byte, payloadLen)
	copy(payload, buf[OuterLen+InnerLen:OuterLen+int(outer.InnerLength)])

	return outer, inner, payload, nil
}
