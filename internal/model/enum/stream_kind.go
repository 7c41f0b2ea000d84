package enum

// StreamKind tags whether a tick came from the warm-up snapshot phase
// or from the realtime phase of a stream.
type StreamKind uint8

const (
	StreamUnknown StreamKind = iota
	StreamSnapshot
	StreamRealtime
)

func (k StreamKind) String() string {
	switch k {
	case StreamSnapshot:
		return "snapshot"
	case StreamRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}
