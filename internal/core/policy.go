package core

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(room *RoomSession, conn ConnID) BackpressureAction
}

// KickSlowPolicy disconnects slow consumers. A connection that cannot drain
// its buffer would otherwise silently miss events forever.
type KickSlowPolicy struct{}

func (KickSlowPolicy) OnBackPressure(room *RoomSession, conn ConnID) BackpressureAction {
	return KickMember
}
