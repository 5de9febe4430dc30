package core

// Frame is a marshaled wire payload.
type Frame []byte

// Sender abstracts the outbound half of a connection.
// Owned by the adapter; the adapter must Close() it.
type Sender interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped []Target
}

// Target pairs a connection id with its sender for fan-out.
type Target struct {
	Conn   ConnID
	Sender Sender
}
