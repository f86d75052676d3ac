package bonjour

import "context"

// Flags accompany every provider reply.
type Flags uint32

const (
	// FlagMoreComing is set when further replies follow in the same batch.
	FlagMoreComing Flags = 0x1
	// FlagAdd distinguishes an appearing instance from a disappearing one.
	FlagAdd Flags = 0x2
)

// Complete reports whether this reply closes a batch.
func (f Flags) Complete() bool {
	return f&FlagMoreComing == 0
}

// Added reports whether the reply announces an instance rather than withdrawing it.
func (f Flags) Added() bool {
	return f&FlagAdd != 0
}

// Kind identifies the provider operation an entity drives.
type Kind int

const (
	KindBrowse Kind = iota
	KindRegister
	KindResolve
)

func (k Kind) String() string {
	switch k {
	case KindBrowse:
		return "browse"
	case KindRegister:
		return "register"
	case KindResolve:
		return "resolve"
	default:
		return "unknown"
	}
}

// Reply callbacks carry the provider status in err; nil means success.
type (
	BrowseReply   func(flags Flags, name, regtype, domain string, err error)
	RegisterReply func(flags Flags, name, regtype, domain string, err error)
	ResolveReply  func(flags Flags, fullname, host string, port uint16, err error)
)

// Operation is one running provider operation.
//
// Wait blocks until results are pending or ctx is done. It returns false
// with a nil error when ctx ends first. Process delivers every pending
// result to the reply callback on the calling goroutine. Release frees the
// operation and is called exactly once, after the last Wait or Process.
type Operation interface {
	Wait(ctx context.Context) (bool, error)
	Process() error
	Release()
}

// Provider begins DNS-SD operations. Replies are only ever delivered from
// Operation.Process.
type Provider interface {
	Browse(regtype, domain string, reply BrowseReply) (Operation, error)
	Register(name, regtype, domain string, port uint16, reply RegisterReply) (Operation, error)
	Resolve(name, regtype, domain string, reply ResolveReply) (Operation, error)
}
