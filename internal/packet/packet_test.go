package packet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lar-simulation/internal/mesh"
)

func TestRREQRoundTrip(t *testing.T) {
	rq := &RouteRequest{
		Originator: 1,
		Target:     4,
		HopCount:   2,
		Seq:        65535,
		Flood:      false,
		Zone:       mesh.Zone{MinX: -20, MinY: 5, MaxX: 300, MaxY: 410},
		Path:       []uint32{1, 2, 3},
	}
	buf, pid, err := rq.Marshal(3, BROADCAST_ADDR)
	require.NoError(t, err)

	bh, got, err := DeserialiseRREQPacket(buf)
	require.NoError(t, err)
	assert.Equal(t, pid, bh.PacketID)
	assert.Equal(t, uint32(3), bh.SrcNodeID)
	assert.Equal(t, BROADCAST_ADDR, bh.DestNodeID)
	if diff := cmp.Diff(rq, got); diff != "" {
		t.Fatalf("RREQ mismatch (-want +got):\n%s", diff)
	}
}

func TestRREQFloodFlag(t *testing.T) {
	rq := &RouteRequest{Originator: 9, Target: 1, Flood: true, Path: []uint32{9}}
	buf, _, err := rq.Marshal(9, BROADCAST_ADDR, 77)
	require.NoError(t, err)
	bh, got, err := DeserialiseRREQPacket(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), bh.PacketID)
	assert.Equal(t, FLAG_FLOOD, bh.Flags&FLAG_FLOOD)
	assert.True(t, got.Flood)
}

func TestRREPRoundTrip(t *testing.T) {
	rp := &RouteReply{
		Originator:   4,
		Target:       1,
		SegmentsLeft: 2,
		Velocity:     12.5,
		Position:     mesh.Position{X: 700, Y: -3},
		Timestamp:    1_700_000_000_123,
		Path:         []uint32{1, 2, 4},
	}
	buf, _, err := rp.Marshal(4, 2)
	require.NoError(t, err)
	_, got, err := DeserialiseRREPPacket(buf)
	require.NoError(t, err)
	if diff := cmp.Diff(rp, got); diff != "" {
		t.Fatalf("RREP mismatch (-want +got):\n%s", diff)
	}
}

func TestRERRRoundTrip(t *testing.T) {
	re := &RouteError{Originator: 3, Target: 1, From: 3, To: 4, SegmentsLeft: 2, Path: []uint32{1, 2, 3}}
	buf, _, err := re.Marshal(3, 2)
	require.NoError(t, err)
	_, got, err := DeserialiseRERRPacket(buf)
	require.NoError(t, err)
	if diff := cmp.Diff(re, got); diff != "" {
		t.Fatalf("RERR mismatch (-want +got):\n%s", diff)
	}
}

func TestDataRoundTripKeepsPacketID(t *testing.T) {
	d := &DataPacket{
		PacketID:     1234,
		Source:       1,
		Dest:         4,
		SegmentsLeft: 2,
		Route:        []uint32{1, 2, 3, 4},
		Payload:      []byte("SensorReading=123"),
	}
	buf, pid, err := d.Marshal(2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), pid)

	bh, got, err := DeserialiseDataPacket(buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), bh.HopCount)
	if diff := cmp.Diff(d, got); diff != "" {
		t.Fatalf("DATA mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDispatchesOnType(t *testing.T) {
	re := &RouteError{Originator: 3, Target: 1, From: 3, To: 4, SegmentsLeft: 1, Path: []uint32{1, 3}}
	buf, _, err := re.Marshal(3, 1)
	require.NoError(t, err)
	bh, pkt, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, PKT_RERR, bh.PacketType)
	assert.IsType(t, &RouteError{}, pkt)

	buf[12] = 0x42
	_, _, err = Parse(buf)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRejectsMalformed(t *testing.T) {
	_, _, err := Parse([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, _, err = (&RouteRequest{Originator: 1}).Marshal(1, BROADCAST_ADDR)
	assert.ErrorIs(t, err, ErrEmptyPath)

	rq := &RouteRequest{Originator: 1, Path: []uint32{1, 2}}
	buf, _, err := rq.Marshal(2, BROADCAST_ADDR)
	require.NoError(t, err)
	_, _, err = DeserialiseRREQPacket(buf[:len(buf)-2])
	assert.ErrorIs(t, err, ErrShortBuffer)

	// zero length path on the wire
	buf[BaseHeaderSize+10] = 0
	_, _, err = DeserialiseRREQPacket(buf)
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestRejectsOversized(t *testing.T) {
	d := &DataPacket{Source: 1, Dest: 2, SegmentsLeft: 1, Route: []uint32{1, 2}, Payload: make([]byte, MaxPacketSize)}
	_, _, err := d.Marshal(1, 2)
	assert.ErrorIs(t, err, ErrTooBig)
}

func TestCloneIsDeep(t *testing.T) {
	d := &DataPacket{Source: 1, Dest: 2, Route: []uint32{1, 2}, Payload: []byte("x")}
	c := d.Clone()
	c.Route[0] = 9
	c.Payload[0] = 'y'
	assert.Equal(t, uint32(1), d.Route[0])
	assert.Equal(t, byte('x'), d.Payload[0])
}
