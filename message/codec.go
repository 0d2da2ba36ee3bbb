package message

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/flux-framework/flux-go/internal/ferrors"
)

const (
	magicByte   byte = 0x8E
	versionByte byte = 0x01
	protoSize        = 20 // 4-byte prelude + 4 network-order u32s
)

// frames returns the on-wire frame list in encode order: route id frames
// (head first), the delimiter (if routing enabled), the topic frame (if
// present), the payload frame (if present), and finally the proto frame.
func (m *Message) frames() [][]byte {
	var fs [][]byte
	if m.flags.Has(FlagRoute) {
		fs = append(fs, m.route...)
		fs = append(fs, []byte{}) // delimiter
	}
	if m.flags.Has(FlagTopic) {
		fs = append(fs, []byte(m.topic))
	}
	if m.flags.Has(FlagPayload) {
		fs = append(fs, m.payload)
	}
	fs = append(fs, m.encodeProto())
	return fs
}

func (m *Message) encodeProto() []byte {
	b := make([]byte, protoSize)
	b[0] = magicByte
	b[1] = versionByte
	b[2] = byte(m.mtype)
	b[3] = byte(m.flags)
	binary.BigEndian.PutUint32(b[4:8], m.userid)
	binary.BigEndian.PutUint32(b[8:12], m.rolemask)
	binary.BigEndian.PutUint32(b[12:16], m.aux1)
	binary.BigEndian.PutUint32(b[16:20], m.aux2)
	return b
}

// Encode concatenates every frame prefixed by a length tag: one byte if
// the frame size is < 0xFF, otherwise 0xFF followed by a 4-byte
// network-order length (spec §4.1).
func (m *Message) Encode() []byte {
	fs := m.frames()
	size := 0
	for _, f := range fs {
		size += frameHeaderSize(len(f)) + len(f)
	}
	out := make([]byte, 0, size)
	for _, f := range fs {
		out = appendFrame(out, f)
	}
	return out
}

func frameHeaderSize(n int) int {
	if n < 0xFF {
		return 1
	}
	return 5
}

func appendFrame(out []byte, f []byte) []byte {
	n := len(f)
	if n < 0xFF {
		out = append(out, byte(n))
	} else {
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(n))
		out = append(out, 0xFF, lb[0], lb[1], lb[2], lb[3])
	}
	return append(out, f...)
}

// Decode parses a wire buffer produced by Encode. Decoding stops when the
// buffer is exhausted; a truncated length or body, or a bad magic/
// version, is a fatal decode error.
func Decode(buf []byte) (*Message, error) {
	var fs [][]byte
	for len(buf) > 0 {
		f, rest, err := readFrame(buf)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
		buf = rest
	}
	if len(fs) == 0 {
		return nil, ferrors.ErrTruncated
	}
	proto := fs[len(fs)-1]
	if len(proto) != protoSize {
		return nil, ferrors.New(ferrors.Decode, 0, "EPROTO: bad proto frame length %d", len(proto))
	}
	if proto[0] != magicByte {
		return nil, ferrors.ErrBadMagic
	}
	if proto[1] != versionByte {
		return nil, ferrors.ErrBadVersion
	}
	m := &Message{
		mtype:    Type(proto[2]),
		flags:    Flags(proto[3]),
		userid:   binary.BigEndian.Uint32(proto[4:8]),
		rolemask: binary.BigEndian.Uint32(proto[8:12]),
		aux1:     binary.BigEndian.Uint32(proto[12:16]),
		aux2:     binary.BigEndian.Uint32(proto[16:20]),
	}
	m.refs = new(atomic.Int32)
	m.refs.Store(1)

	rest := fs[:len(fs)-1]
	i := 0
	if m.flags.Has(FlagRoute) {
		for i < len(rest) && len(rest[i]) > 0 {
			m.route = append(m.route, append([]byte(nil), rest[i]...))
			i++
		}
		if i >= len(rest) {
			return nil, ferrors.New(ferrors.Decode, 0, "EPROTO: missing routing delimiter")
		}
		i++ // skip the empty delimiter frame
	}
	if m.flags.Has(FlagTopic) {
		if i >= len(rest) {
			return nil, ferrors.New(ferrors.Decode, 0, "EPROTO: missing topic frame")
		}
		m.topic = string(rest[i])
		i++
	}
	if m.flags.Has(FlagPayload) {
		if i >= len(rest) {
			return nil, ferrors.New(ferrors.Decode, 0, "EPROTO: missing payload frame")
		}
		m.payload = append([]byte(nil), rest[i]...)
		i++
	}
	return m, nil
}

func readFrame(buf []byte) (f, rest []byte, err error) {
	if len(buf) < 1 {
		return nil, nil, ferrors.ErrTruncated
	}
	n := int(buf[0])
	hdr := 1
	if buf[0] == 0xFF {
		if len(buf) < 5 {
			return nil, nil, ferrors.ErrTruncated
		}
		n = int(binary.BigEndian.Uint32(buf[1:5]))
		hdr = 5
	}
	if len(buf) < hdr+n {
		return nil, nil, ferrors.ErrTruncated
	}
	return buf[hdr : hdr+n], buf[hdr+n:], nil
}
