// Package naming validates and composes DNS-SD names.
//
// Entities in pkg/bonjour run every name, registration type and domain
// through the Validate functions before storing them. The composition
// helpers build the wire-level names the provider backends need.
package naming

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// DefaultDomain is used whenever a caller leaves the domain empty.
const DefaultDomain = "local."

var (
	ErrInvalidRegtype = errors.New("invalid registration type")
	ErrInvalidDomain  = errors.New("invalid domain")
	ErrInvalidName    = errors.New("invalid instance name")
)

// maxLabel is the DNS label limit that also bounds instance names.
const maxLabel = 63

func ValidateName(name string) string {
	return name
}

func ValidateRegtype(regtype string) string {
	return regtype
}

// ValidateDomain maps an empty domain to DefaultDomain and passes anything else through unchanged.
func ValidateDomain(domain string) string {
	if domain == "" {
		return DefaultDomain
	}
	return domain
}

// CheckName reports whether name can be used as a service instance label.
func CheckName(name string) error {
	if len(name) > maxLabel {
		return fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidName, name, maxLabel)
	}
	return nil
}

// CheckRegtype accepts registration types of the form _service._tcp or _service._udp.
func CheckRegtype(regtype string) error {
	labels := dns.SplitDomainName(regtype)
	if len(labels) != 2 {
		return fmt.Errorf("%w: %q must have exactly two labels", ErrInvalidRegtype, regtype)
	}
	service, proto := labels[0], labels[1]
	if len(service) < 2 || service[0] != '_' || len(service) > 16 {
		return fmt.Errorf("%w: service label %q must start with '_' and hold 1-15 characters", ErrInvalidRegtype, service)
	}
	if proto != "_tcp" && proto != "_udp" {
		return fmt.Errorf("%w: protocol label %q must be _tcp or _udp", ErrInvalidRegtype, proto)
	}
	return nil
}

// CheckDomain reports whether domain is a syntactically valid domain name.
func CheckDomain(domain string) error {
	if _, ok := dns.IsDomainName(ValidateDomain(domain)); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return nil
}

// ServiceName returns the fully qualified browse target, e.g. "_chat._tcp.local.".
func ServiceName(regtype, domain string) string {
	regtype = strings.TrimSuffix(regtype, ".")
	domain = strings.Trim(ValidateDomain(domain), ".")
	return dns.Fqdn(regtype + "." + domain)
}

// InstanceName returns the escaped, fully qualified instance name, e.g. "alice._chat._tcp.local.".
func InstanceName(name, regtype, domain string) string {
	return EscapeLabel(name) + "." + ServiceName(regtype, domain)
}

// HostName qualifies a bare host label with domain. Hosts that already
// contain a dot are only made fully qualified.
func HostName(host, domain string) string {
	if host == "" {
		return ""
	}
	if strings.Contains(strings.TrimSuffix(host, "."), ".") {
		return dns.Fqdn(host)
	}
	return dns.Fqdn(strings.TrimSuffix(host, ".") + "." + strings.Trim(ValidateDomain(domain), "."))
}

// SplitInstance breaks a fully qualified instance name into its instance
// name, registration type and domain.
func SplitInstance(full string) (name, regtype, domain string, ok bool) {
	labels := dns.SplitDomainName(full)
	for i := 1; i+1 < len(labels); i++ {
		if !strings.HasPrefix(labels[i], "_") {
			continue
		}
		if labels[i+1] != "_tcp" && labels[i+1] != "_udp" {
			continue
		}
		name = UnescapeLabel(strings.Join(labels[:i], "."))
		regtype = labels[i] + "." + labels[i+1]
		domain = DefaultDomain
		if i+2 < len(labels) {
			domain = strings.Join(labels[i+2:], ".") + "."
		}
		return name, regtype, domain, true
	}
	return "", "", "", false
}

// EscapeLabel escapes dots and backslashes so that label survives as one DNS label.
func EscapeLabel(label string) string {
	var b strings.Builder
	for i := 0; i < len(label); i++ {
		switch c := label[i]; c {
		case '.', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// UnescapeLabel reverses EscapeLabel and also decodes \DDD sequences.
func UnescapeLabel(label string) string {
	if !strings.Contains(label, `\`) {
		return label
	}
	var b strings.Builder
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c != '\\' || i+1 >= len(label) {
			b.WriteByte(c)
			continue
		}
		if i+3 < len(label) && isDigits(label[i+1:i+4]) {
			if v, err := strconv.Atoi(label[i+1 : i+4]); err == nil && v < 256 {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(label[i+1])
		i++
	}
	return b.String()
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
