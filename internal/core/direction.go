package core

// Direction classifies a frame relative to the observed server endpoint.
type Direction uint8

const (
	NotRelated Direction = iota
	FromClient
	FromServer
)

func (d Direction) String() string {
	switch d {
	case FromClient:
		return "from-client"
	case FromServer:
		return "from-server"
	default:
		return "not-related"
	}
}

// DirectionOf is total over (view, server): FromServer when the source equals
// the server endpoint, FromClient when the destination does, NotRelated
// otherwise. A frame matching on both sides is degenerate (loopback capture)
// and classified NotRelated.
func DirectionOf(v UDPView, server Endpoint) Direction {
	src := v.Src == server
	dst := v.Dst == server
	switch {
	case src && dst:
		return NotRelated
	case src:
		return FromServer
	case dst:
		return FromClient
	default:
		return NotRelated
	}
}
