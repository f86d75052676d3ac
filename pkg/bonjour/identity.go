package bonjour

import "github.com/rescp17/lanpeer/pkg/naming"

// Identity is the (name, registration type, domain) triple naming a
// service instance. The zero domain never survives construction: it is
// replaced with naming.DefaultDomain.
type Identity struct {
	name    string
	regtype string
	domain  string
}

// NewIdentity builds an Identity from validated parts.
func NewIdentity(name, regtype, domain string) Identity {
	return Identity{
		name:    naming.ValidateName(name),
		regtype: naming.ValidateRegtype(regtype),
		domain:  naming.ValidateDomain(domain),
	}
}

func (id Identity) Name() string    { return id.name }
func (id Identity) Regtype() string { return id.regtype }
func (id Identity) Domain() string  { return id.domain }

// Identity lets an Identity stand in wherever a Named value is expected.
func (id Identity) Identity() Identity { return id }

// Equal compares all three fields exactly, case included.
func (id Identity) Equal(other Identity) bool {
	return id.name == other.name && id.regtype == other.regtype && id.domain == other.domain
}

func (id Identity) String() string {
	return naming.InstanceName(id.name, id.regtype, id.domain)
}

// Named is anything that carries an Identity.
type Named interface {
	Identity() Identity
}

// IndexOf returns the position of the first element of list equal to id, or -1.
func IndexOf[T Named](list []T, id Identity) int {
	for i, item := range list {
		if item.Identity().Equal(id) {
			return i
		}
	}
	return -1
}
