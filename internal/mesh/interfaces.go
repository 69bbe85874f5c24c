package mesh

// INetwork is the shared radio medium the nodes transmit on.
type INetwork interface {
	Join(n INode)
	Leave(nodeID uint32)
	GetNode(nodeID uint32) (INode, error)
	NodeIDs() []uint32
	BroadcastMessage(sendPacket []byte, sender INode)
	// UnicastMessage fails synchronously when nextHop is unknown or out of range.
	UnicastMessage(sendPacket []byte, sender INode, nextHop uint32) error
	InRange(a, b INode) bool
}

type INode interface {
	GetID() uint32
	SendData(destID uint32, payload []byte)
	HandleMessage(receivedPacket []byte)
	PrintNodeDetails()

	GetPosition() Coordinates
	SetPosition(coord Coordinates)
	GetSpeed() float64
}
