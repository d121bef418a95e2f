package monitor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loranet/strp/internal/wire"
)

func TestOverlayEncodeDecodeRoundTrip(t *testing.T) {
	h := overlayHeader{HopCount: 3, SendTimestamp: 1234567890}
	path := []wire.Addr{1, 2, 3}
	payload := []byte{0xDE, 0xAD}

	raw := encodeOverlay(h, path, payload)

	gotH, gotPath, gotPayload, err := decodeOverlay(raw)
	require.NoError(t, err)
	require.Equal(t, h, gotH)
	require.Equal(t, path, gotPath)
	require.Equal(t, payload, gotPayload)
}

func TestOverlayDecodeRejectsWrongCtrl(t *testing.T) {
	raw := []byte{wire.CtrlPkt, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	_, _, _, err := decodeOverlay(raw)
	require.ErrorIs(t, err, ErrShortOverlay)
}

func TestOverlayDecodeRejectsShortPayload(t *testing.T) {
	_, _, _, err := decodeOverlay([]byte{wire.CtrlMsg, 1, 2, 3})
	require.ErrorIs(t, err, ErrShortOverlay)
}

func TestOverlayDecodeRejectsTruncatedPath(t *testing.T) {
	h := overlayHeader{HopCount: 1, SendTimestamp: 1}
	raw := encodeOverlay(h, []wire.Addr{1, 2, 3}, nil)
	_, _, _, err := decodeOverlay(raw[:len(raw)-1])
	require.ErrorIs(t, err, ErrShortOverlay)
}

func TestPathStringFormatsHexDashJoined(t *testing.T) {
	require.Equal(t, "", pathString(nil))
	require.Equal(t, "01", pathString([]wire.Addr{1}))
	require.Equal(t, "01-0A-FF", pathString([]wire.Addr{1, 10, 255}))
}
