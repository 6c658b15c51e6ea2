package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlHelloRoundTrip(t *testing.T) {
	msg := ControlMessage{Kind: Hello, Source: Addr{IP: 0x0A000001, Port: 9000}}
	buf := EncodeControl(msg)
	require.True(t, IsControlKind(buf[0]))

	got, err := DecodeControl(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestControlLsmRoundTrip(t *testing.T) {
	msg := ControlMessage{
		Kind:      Lsm,
		Source:    Addr{IP: 1, Port: 100},
		SeqNum:    17,
		TTL:       15,
		Neighbors: []Addr{{IP: 2, Port: 200}, {IP: 3, Port: 300}},
	}
	buf := EncodeControl(msg)
	got, err := DecodeControl(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestControlLsmEmptyNeighbors(t *testing.T) {
	msg := ControlMessage{Kind: Lsm, Source: Addr{IP: 1, Port: 1}, SeqNum: 1, TTL: 15, Neighbors: []Addr{}}
	buf := EncodeControl(msg)
	got, err := DecodeControl(buf)
	require.NoError(t, err)
	assert.Empty(t, got.Neighbors)
}

func TestControlTraceRoundTrip(t *testing.T) {
	msg := ControlMessage{
		Kind:        Trace,
		Source:      Addr{IP: 1, Port: 1},
		TTL:         15,
		Destination: Addr{IP: 9, Port: 9000},
	}
	buf := EncodeControl(msg)
	got, err := DecodeControl(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestDecodeControlMalformed(t *testing.T) {
	_, err := DecodeControl(nil)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeControl([]byte{byte(Hello)})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeControl([]byte{'X'})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestIsControlKindDistinguishesFromPriority(t *testing.T) {
	assert.False(t, IsControlKind(Priority1))
	assert.False(t, IsControlKind(Priority2))
	assert.False(t, IsControlKind(Priority3))
	assert.True(t, IsControlKind(byte(Hello)))
	assert.True(t, IsControlKind(byte(Lsm)))
	assert.True(t, IsControlKind(byte(Trace)))
}
