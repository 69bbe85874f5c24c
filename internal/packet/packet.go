package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"lar-simulation/internal/mesh"
)

// Packet Types
const (
	PKT_RREQ uint8 = 0x01 //1
	PKT_RREP uint8 = 0x02 //2
	PKT_RERR uint8 = 0x03 //3
	PKT_DATA uint8 = 0x04 //4
)

const (
	FLAG_FLOOD uint8 = 0x01 // RREQ is not bounded by its zone
)

const (
	MaxPacketSize = 255 // bytes – LoRa airtime optimiser

	BROADCAST_ADDR uint32 = 0xFFFFFFFF // everyone hears

	BaseHeaderSize = 16
	rreqHeaderSize = 28
	rrepHeaderSize = 36
	rerrHeaderSize = 20
	DataHeaderSize = 12
)

var (
	ErrShortBuffer = errors.New("buffer too short")
	ErrTooBig      = errors.New("packet exceeds MaxPacketSize")
	ErrEmptyPath   = errors.New("empty path")
	ErrUnknownType = errors.New("unknown packet type")
)

type BaseHeader struct {
	DestNodeID uint32 // destination of the hop not the route
	SrcNodeID  uint32
	PacketID   uint32
	PacketType uint8
	Flags      uint8
	HopCount   uint8
	Reserved   uint8
}

// ControlPacket is implemented by the three routing control packets.
type ControlPacket interface {
	Kind() uint8
	Marshal(srcID, nextHopID uint32, packetID ...uint32) ([]byte, uint32, error)
}

// RouteRequest is flooded (optionally zone bounded) towards Target.
type RouteRequest struct {
	Originator uint32
	Target     uint32
	HopCount   uint8
	Seq        uint16
	Flood      bool
	Zone       mesh.Zone
	Path       []uint32 // nodes traversed so far, originator first
}

// RouteReply travels back along Path from the request target to the originator.
type RouteReply struct {
	Originator   uint32 // node that answers, the target of the request
	Target       uint32 // node that asked
	SegmentsLeft uint8
	Velocity     float64
	Position     mesh.Position
	Timestamp    int64 // unix nanos the position was sampled at
	Path         []uint32
}

// RouteError reports the broken link From->To back to the data source.
type RouteError struct {
	Originator   uint32 // node that detected the break
	Target       uint32 // data source
	From         uint32
	To           uint32
	SegmentsLeft uint8
	Path         []uint32 // source .. originator
}

// DataPacket is a source routed data packet. Route holds the full route,
// source first and destination last.
type DataPacket struct {
	PacketID     uint32
	Source       uint32
	Dest         uint32
	SegmentsLeft uint8
	Route        []uint32
	Payload      []byte
}

func (*RouteRequest) Kind() uint8 { return PKT_RREQ }
func (*RouteReply) Kind() uint8   { return PKT_RREP }
func (*RouteError) Kind() uint8   { return PKT_RERR }

func (bh *BaseHeader) SerialiseBaseHeader() ([]byte, error) {
	buf := make([]byte, BaseHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], bh.DestNodeID)
	binary.LittleEndian.PutUint32(buf[4:8], bh.SrcNodeID)
	binary.LittleEndian.PutUint32(buf[8:12], bh.PacketID)
	buf[12] = bh.PacketType
	buf[13] = bh.Flags
	buf[14] = bh.HopCount
	buf[15] = bh.Reserved
	return buf, nil
}

func (bh *BaseHeader) DeserialiseBaseHeader(buf []byte) error {
	if len(buf) < BaseHeaderSize {
		return fmt.Errorf("BaseHeader: %w", ErrShortBuffer)
	}
	bh.DestNodeID = binary.LittleEndian.Uint32(buf[0:4])
	bh.SrcNodeID = binary.LittleEndian.Uint32(buf[4:8])
	bh.PacketID = binary.LittleEndian.Uint32(buf[8:12])
	bh.PacketType = buf[12]
	bh.Flags = buf[13]
	bh.HopCount = buf[14]
	bh.Reserved = buf[15]
	return nil
}

func createPacketID() uint32 {
	return uint32(rand.Int31())
}

func chooseID(ids ...uint32) uint32 {
	if len(ids) > 0 {
		return ids[0]
	}
	return createPacketID()
}

func putPath(buf []byte, path []uint32) {
	for i, id := range path {
		binary.LittleEndian.PutUint32(buf[i*4:], id)
	}
}

func readPath(buf []byte, n int) ([]uint32, error) {
	if len(buf) < n*4 {
		return nil, fmt.Errorf("path of %d: %w", n, ErrShortBuffer)
	}
	path := make([]uint32, n)
	for i := range path {
		path[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return path, nil
}

// assemble glues the base header, the type header and the trailing bytes
// together, enforcing MaxPacketSize.
func assemble(bh BaseHeader, hdr []byte, tail ...[]byte) ([]byte, error) {
	bhBytes, err := bh.SerialiseBaseHeader()
	if err != nil {
		return nil, fmt.Errorf("error serialising BaseHeader: %w", err)
	}
	total := len(bhBytes) + len(hdr)
	for _, t := range tail {
		total += len(t)
	}
	if total > MaxPacketSize {
		return nil, fmt.Errorf("type %d packet of %d B: %w", bh.PacketType, total, ErrTooBig)
	}
	pkt := make([]byte, 0, total)
	pkt = append(pkt, bhBytes...)
	pkt = append(pkt, hdr...)
	for _, t := range tail {
		pkt = append(pkt, t...)
	}
	return pkt, nil
}

func pathBytes(path []uint32) []byte {
	b := make([]byte, len(path)*4)
	putPath(b, path)
	return b
}

// Marshal encodes the request for broadcast by srcID.
func (rq *RouteRequest) Marshal(srcID, nextHopID uint32, packetID ...uint32) ([]byte, uint32, error) {
	if len(rq.Path) == 0 {
		return nil, 0, fmt.Errorf("RREQ: %w", ErrEmptyPath)
	}
	if len(rq.Path) > math.MaxUint8 {
		return nil, 0, fmt.Errorf("RREQ path of %d: %w", len(rq.Path), ErrTooBig)
	}
	pid := chooseID(packetID...)
	bh := BaseHeader{
		DestNodeID: nextHopID,
		SrcNodeID:  srcID,
		PacketID:   pid,
		PacketType: PKT_RREQ,
		HopCount:   rq.HopCount,
	}
	if rq.Flood {
		bh.Flags |= FLAG_FLOOD
	}

	hdr := make([]byte, rreqHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], rq.Originator)
	binary.LittleEndian.PutUint32(hdr[4:8], rq.Target)
	binary.LittleEndian.PutUint16(hdr[8:10], rq.Seq)
	hdr[10] = uint8(len(rq.Path))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(rq.Zone.MinX))
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(rq.Zone.MinY))
	binary.LittleEndian.PutUint32(hdr[20:24], uint32(rq.Zone.MaxX))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(rq.Zone.MaxY))

	pkt, err := assemble(bh, hdr, pathBytes(rq.Path))
	if err != nil {
		return nil, 0, err
	}
	return pkt, pid, nil
}

// Marshal encodes the reply for unicast from srcID to nextHopID.
func (rp *RouteReply) Marshal(srcID, nextHopID uint32, packetID ...uint32) ([]byte, uint32, error) {
	if len(rp.Path) == 0 {
		return nil, 0, fmt.Errorf("RREP: %w", ErrEmptyPath)
	}
	if len(rp.Path) > math.MaxUint8 {
		return nil, 0, fmt.Errorf("RREP path of %d: %w", len(rp.Path), ErrTooBig)
	}
	pid := chooseID(packetID...)
	bh := BaseHeader{
		DestNodeID: nextHopID,
		SrcNodeID:  srcID,
		PacketID:   pid,
		PacketType: PKT_RREP,
	}

	hdr := make([]byte, rrepHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], rp.Originator)
	binary.LittleEndian.PutUint32(hdr[4:8], rp.Target)
	hdr[8] = rp.SegmentsLeft
	hdr[9] = uint8(len(rp.Path))
	binary.LittleEndian.PutUint64(hdr[12:20], math.Float64bits(rp.Velocity))
	binary.LittleEndian.PutUint32(hdr[20:24], uint32(rp.Position.X))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(rp.Position.Y))
	binary.LittleEndian.PutUint64(hdr[28:36], uint64(rp.Timestamp))

	pkt, err := assemble(bh, hdr, pathBytes(rp.Path))
	if err != nil {
		return nil, 0, err
	}
	return pkt, pid, nil
}

// Marshal encodes the error for unicast from srcID to nextHopID.
func (re *RouteError) Marshal(srcID, nextHopID uint32, packetID ...uint32) ([]byte, uint32, error) {
	if len(re.Path) == 0 {
		return nil, 0, fmt.Errorf("RERR: %w", ErrEmptyPath)
	}
	if len(re.Path) > math.MaxUint8 {
		return nil, 0, fmt.Errorf("RERR path of %d: %w", len(re.Path), ErrTooBig)
	}
	pid := chooseID(packetID...)
	bh := BaseHeader{
		DestNodeID: nextHopID,
		SrcNodeID:  srcID,
		PacketID:   pid,
		PacketType: PKT_RERR,
	}

	hdr := make([]byte, rerrHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], re.Originator)
	binary.LittleEndian.PutUint32(hdr[4:8], re.Target)
	binary.LittleEndian.PutUint32(hdr[8:12], re.From)
	binary.LittleEndian.PutUint32(hdr[12:16], re.To)
	hdr[16] = re.SegmentsLeft
	hdr[17] = uint8(len(re.Path))

	pkt, err := assemble(bh, hdr, pathBytes(re.Path))
	if err != nil {
		return nil, 0, err
	}
	return pkt, pid, nil
}

// Marshal encodes the data packet for the hop srcID -> nextHopID. The packet
// keeps its own PacketID across hops unless one is supplied.
func (d *DataPacket) Marshal(srcID, nextHopID uint32, packetID ...uint32) ([]byte, uint32, error) {
	if len(d.Route) < 2 {
		return nil, 0, fmt.Errorf("DATA route of %d: %w", len(d.Route), ErrEmptyPath)
	}
	if len(d.Route) > math.MaxUint8 || len(d.Payload) > math.MaxUint16 {
		return nil, 0, fmt.Errorf("DATA: %w", ErrTooBig)
	}
	pid := d.PacketID
	if len(packetID) > 0 || pid == 0 {
		pid = chooseID(packetID...)
	}
	bh := BaseHeader{
		DestNodeID: nextHopID,
		SrcNodeID:  srcID,
		PacketID:   pid,
		PacketType: PKT_DATA,
		HopCount:   uint8(len(d.Route)-1) - d.SegmentsLeft,
	}

	hdr := make([]byte, DataHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], d.Source)
	binary.LittleEndian.PutUint32(hdr[4:8], d.Dest)
	hdr[8] = d.SegmentsLeft
	hdr[9] = uint8(len(d.Route))
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(len(d.Payload)))

	pkt, err := assemble(bh, hdr, pathBytes(d.Route), d.Payload)
	if err != nil {
		return nil, 0, err
	}
	return pkt, pid, nil
}

// Clone deep copies the packet so a buffered copy survives later mutation.
func (d *DataPacket) Clone() *DataPacket {
	c := *d
	c.Route = slices.Clone(d.Route)
	c.Payload = slices.Clone(d.Payload)
	return &c
}

func deserialiseBase(buf []byte, want uint8) (BaseHeader, error) {
	var bh BaseHeader
	if err := bh.DeserialiseBaseHeader(buf); err != nil {
		return bh, err
	}
	if bh.PacketType != want {
		return bh, fmt.Errorf("type %d, want %d: %w", bh.PacketType, want, ErrUnknownType)
	}
	return bh, nil
}

// DeserialiseRREQPacket reads a RREQ packet from buf.
func DeserialiseRREQPacket(buf []byte) (BaseHeader, *RouteRequest, error) {
	bh, err := deserialiseBase(buf, PKT_RREQ)
	if err != nil {
		return bh, nil, err
	}
	hdr := buf[BaseHeaderSize:]
	if len(hdr) < rreqHeaderSize {
		return bh, nil, fmt.Errorf("RREQHeader: %w", ErrShortBuffer)
	}
	rq := &RouteRequest{
		Originator: binary.LittleEndian.Uint32(hdr[0:4]),
		Target:     binary.LittleEndian.Uint32(hdr[4:8]),
		Seq:        binary.LittleEndian.Uint16(hdr[8:10]),
		HopCount:   bh.HopCount,
		Flood:      bh.Flags&FLAG_FLOOD != 0,
		Zone: mesh.Zone{
			MinX: int32(binary.LittleEndian.Uint32(hdr[12:16])),
			MinY: int32(binary.LittleEndian.Uint32(hdr[16:20])),
			MaxX: int32(binary.LittleEndian.Uint32(hdr[20:24])),
			MaxY: int32(binary.LittleEndian.Uint32(hdr[24:28])),
		},
	}
	n := int(hdr[10])
	if n == 0 {
		return bh, nil, fmt.Errorf("RREQ: %w", ErrEmptyPath)
	}
	if rq.Path, err = readPath(hdr[rreqHeaderSize:], n); err != nil {
		return bh, nil, err
	}
	return bh, rq, nil
}

// DeserialiseRREPPacket reads a RREP packet from buf.
func DeserialiseRREPPacket(buf []byte) (BaseHeader, *RouteReply, error) {
	bh, err := deserialiseBase(buf, PKT_RREP)
	if err != nil {
		return bh, nil, err
	}
	hdr := buf[BaseHeaderSize:]
	if len(hdr) < rrepHeaderSize {
		return bh, nil, fmt.Errorf("RREPHeader: %w", ErrShortBuffer)
	}
	rp := &RouteReply{
		Originator:   binary.LittleEndian.Uint32(hdr[0:4]),
		Target:       binary.LittleEndian.Uint32(hdr[4:8]),
		SegmentsLeft: hdr[8],
		Velocity:     math.Float64frombits(binary.LittleEndian.Uint64(hdr[12:20])),
		Position: mesh.Position{
			X: int32(binary.LittleEndian.Uint32(hdr[20:24])),
			Y: int32(binary.LittleEndian.Uint32(hdr[24:28])),
		},
		Timestamp: int64(binary.LittleEndian.Uint64(hdr[28:36])),
	}
	n := int(hdr[9])
	if n == 0 {
		return bh, nil, fmt.Errorf("RREP: %w", ErrEmptyPath)
	}
	if rp.Path, err = readPath(hdr[rrepHeaderSize:], n); err != nil {
		return bh, nil, err
	}
	return bh, rp, nil
}

// DeserialiseRERRPacket reads a RERR packet from buf.
func DeserialiseRERRPacket(buf []byte) (BaseHeader, *RouteError, error) {
	bh, err := deserialiseBase(buf, PKT_RERR)
	if err != nil {
		return bh, nil, err
	}
	hdr := buf[BaseHeaderSize:]
	if len(hdr) < rerrHeaderSize {
		return bh, nil, fmt.Errorf("RERRHeader: %w", ErrShortBuffer)
	}
	re := &RouteError{
		Originator:   binary.LittleEndian.Uint32(hdr[0:4]),
		Target:       binary.LittleEndian.Uint32(hdr[4:8]),
		From:         binary.LittleEndian.Uint32(hdr[8:12]),
		To:           binary.LittleEndian.Uint32(hdr[12:16]),
		SegmentsLeft: hdr[16],
	}
	n := int(hdr[17])
	if n == 0 {
		return bh, nil, fmt.Errorf("RERR: %w", ErrEmptyPath)
	}
	if re.Path, err = readPath(hdr[rerrHeaderSize:], n); err != nil {
		return bh, nil, err
	}
	return bh, re, nil
}

// DeserialiseDataPacket reads a DATA packet from buf.
func DeserialiseDataPacket(buf []byte) (BaseHeader, *DataPacket, error) {
	bh, err := deserialiseBase(buf, PKT_DATA)
	if err != nil {
		return bh, nil, err
	}
	hdr := buf[BaseHeaderSize:]
	if len(hdr) < DataHeaderSize {
		return bh, nil, fmt.Errorf("DataHeader: %w", ErrShortBuffer)
	}
	d := &DataPacket{
		PacketID:     bh.PacketID,
		Source:       binary.LittleEndian.Uint32(hdr[0:4]),
		Dest:         binary.LittleEndian.Uint32(hdr[4:8]),
		SegmentsLeft: hdr[8],
	}
	n := int(hdr[9])
	if n < 2 {
		return bh, nil, fmt.Errorf("DATA route of %d: %w", n, ErrEmptyPath)
	}
	rest := hdr[DataHeaderSize:]
	if d.Route, err = readPath(rest, n); err != nil {
		return bh, nil, err
	}
	rest = rest[n*4:]
	plen := int(binary.LittleEndian.Uint16(hdr[10:12]))
	if len(rest) < plen {
		return bh, nil, fmt.Errorf("DATA payload of %d: %w", plen, ErrShortBuffer)
	}
	d.Payload = slices.Clone(rest[:plen])
	return bh, d, nil
}

// Parse decodes any packet. The second result is one of *RouteRequest,
// *RouteReply, *RouteError or *DataPacket.
func Parse(buf []byte) (BaseHeader, any, error) {
	var bh BaseHeader
	if err := bh.DeserialiseBaseHeader(buf); err != nil {
		return bh, nil, err
	}
	switch bh.PacketType {
	case PKT_RREQ:
		return DeserialiseRREQPacket(buf)
	case PKT_RREP:
		return DeserialiseRREPPacket(buf)
	case PKT_RERR:
		return DeserialiseRERRPacket(buf)
	case PKT_DATA:
		return DeserialiseDataPacket(buf)
	default:
		return bh, nil, fmt.Errorf("type %d: %w", bh.PacketType, ErrUnknownType)
	}
}

// TypeName is used in logs and events.
func TypeName(t uint8) string {
	switch t {
	case PKT_RREQ:
		return "RREQ"
	case PKT_RREP:
		return "RREP"
	case PKT_RERR:
		return "RERR"
	case PKT_DATA:
		return "DATA"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}
