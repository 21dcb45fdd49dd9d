package host

// Player is the invoking user of a command.
type Player interface {
	ID() string
	Name() string
	// IsAdmin reports an elevated role granted by the transport itself
	// (server console, configured chat admins).
	IsAdmin() bool
	Reply(msg string)
}

type chatPlayer struct {
	id    string
	name  string
	admin bool
	reply func(string)
}

// NewPlayer returns a Player whose replies go to reply.
func NewPlayer(id, name string, admin bool, reply func(string)) Player {
	if name == "" {
		name = id
	}
	return &chatPlayer{id: id, name: name, admin: admin, reply: reply}
}

func (p *chatPlayer) ID() string    { return p.id }
func (p *chatPlayer) Name() string  { return p.name }
func (p *chatPlayer) IsAdmin() bool { return p.admin }

func (p *chatPlayer) Reply(msg string) {
	if p.reply != nil {
		p.reply(msg)
	}
}
