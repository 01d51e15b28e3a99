package relay

// Frame is one JSON-framed protocol message.
type Frame []byte

// Peer is the outbound half of a live connection. The registry only ever
// sends through it; closing the socket stays with the signal adapter.
type Peer interface {
	TrySend(Frame) error
}
