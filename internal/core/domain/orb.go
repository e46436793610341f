package domain

// Field geometry. Positions live on a [0,100]x[0,100] plane; after any
// physics tick the position is clamped inside [FieldMin,FieldMax] on
// both axes so an orb never touches the edge.
const (
	FieldSize = 100.0
	FieldMin  = 2.0
	FieldMax  = 98.0
)

// FieldCenter is the gravity well every orb drifts toward.
var FieldCenter = Vec2{X: FieldSize / 2, Y: FieldSize / 2}

// DefaultOrbRadius is the render radius for an orb that has not announced
// its own.
const DefaultOrbRadius = 5.0

// Orb is one room participant's spatial representation. Exactly one orb
// per client has IsSelf set; that orb is locally authoritative and is
// never patched from the channel.
type Orb struct {
	ID       ParticipantID `json:"id"`
	Name     string        `json:"name"`
	Image    string        `json:"image,omitempty"`
	Position Vec2          `json:"position"`
	Velocity Vec2          `json:"velocity"`
	Radius   float64       `json:"radius"`
	Talking  bool          `json:"talking"`
	IsSelf   bool          `json:"-"`
}

// InBounds reports whether the orb position satisfies the field clamp.
func (o Orb) InBounds() bool {
	return o.Position.X >= FieldMin && o.Position.X <= FieldMax &&
		o.Position.Y >= FieldMin && o.Position.Y <= FieldMax
}

// Particle is an ephemeral visual token spawned by an emote burst. It
// lives only in the local render loop and is never transmitted.
type Particle struct {
	ID       int64
	Position Vec2
	Velocity Vec2
	Glyph    string
	Life     float64
}

// Expired reports whether the particle should be dropped this tick.
func (p Particle) Expired() bool {
	return p.Life <= 0
}
