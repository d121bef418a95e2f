package mac

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/loranet/strp/internal/wire"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	h := Header{Ctrl: wire.CtrlPkt, Src: 1, Dst: 2, Seq: 42, Len: 3}
	payload := []byte{0xAA, 0xBB, 0xCC}

	frame, err := Pack(h, payload)
	require.NoError(t, err)

	got, gotPayload, err := Unpack(frame)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Equal(t, payload, gotPayload)
}

func TestUnpackRejectsChecksumMismatch(t *testing.T) {
	frame, err := Pack(Header{Ctrl: wire.CtrlPkt, Src: 1, Dst: 2, Seq: 1, Len: 1}, []byte{0x01})
	require.NoError(t, err)

	frame[len(frame)-1] ^= 0xFF // corrupt the last payload byte
	_, _, err = Unpack(frame)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestUnpackRejectsShortFrame(t *testing.T) {
	_, _, err := Unpack([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrShortFrame)
}

func TestPackRejectsOversizePayload(t *testing.T) {
	_, err := Pack(Header{Ctrl: wire.CtrlPkt}, make([]byte, MaxPayload+1))
	require.ErrorIs(t, err, ErrTooLarge)
}

// TestChecksumInvariantUnderReordering exercises wire.Checksum8 the same
// way byte-sum checksums are claimed to behave for all inputs: the
// additive sum does not depend on the order the bytes are summed in. A
// rotation by an arbitrary offset is used as the reordering since it
// covers every cyclic permutation without needing a dedicated shuffle
// generator.
func TestChecksumInvariantUnderReordering(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(rt, "data")
		if len(data) == 0 {
			return
		}
		offset := rapid.IntRange(0, len(data)-1).Draw(rt, "offset")

		rotated := append(append([]byte(nil), data[offset:]...), data[:offset]...)

		require.Equal(t, wire.Checksum8(data), wire.Checksum8(rotated))
	})
}

func TestBeaconPackUnpackRoundTrip(t *testing.T) {
	frame := packBeacon(5, 9, -42)
	h, payload, err := Unpack(frame)
	require.NoError(t, err)
	require.Equal(t, wire.CtrlBcn, h.Ctrl)

	parent, parentRSSI, ok := unpackBeacon(payload)
	require.True(t, ok)
	require.Equal(t, wire.Addr(9), parent)
	require.Equal(t, int8(-42), parentRSSI)
}
