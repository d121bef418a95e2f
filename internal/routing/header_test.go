package routing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loranet/strp/internal/mac"
	"github.com/loranet/strp/internal/wire"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{Ctrl: wire.CtrlPkt, Src: 3, Dst: 7}
	payload := []byte{0x01, 0x02, 0x03}

	raw, err := Encode(h, payload)
	require.NoError(t, err)

	got, gotPayload, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Equal(t, payload, gotPayload)
}

func TestHeaderEncodeRejectsOversizePayload(t *testing.T) {
	_, err := Encode(Header{Ctrl: wire.CtrlPkt}, make([]byte, mac.MaxPayload))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestHeaderDecodeRejectsShortPayload(t *testing.T) {
	_, _, err := Decode([]byte{1, 2})
	require.ErrorIs(t, err, ErrShortHeader)
}

func TestTopologyEncodeDecodeRoundTrip(t *testing.T) {
	records := []TopoRecord{
		{Addr: 1, State: 1, Link: 0, Parent: 0xFE, RSSI: -50, ParentRSSI: -60, LastSeen: 1000},
		{Addr: 2, State: 2, Link: 1, Parent: 1, RSSI: -70, ParentRSSI: -50, LastSeen: 2000},
	}

	raw := EncodeTopology(records)
	got := DecodeTopology(raw)
	require.Equal(t, records, got)
}

func TestTopologyDecodeEmpty(t *testing.T) {
	require.Empty(t, DecodeTopology(nil))
}
