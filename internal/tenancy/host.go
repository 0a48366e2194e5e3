package tenancy

import (
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// PlatformSentinel is the reserved label and tenant identifier of the operator plane.
const PlatformSentinel = "platform"

// Surface is the application surface a host routes to.
type Surface string

const (
	SurfacePublic   Surface = "public"
	SurfacePlatform Surface = "platform"
	SurfaceTenant   Surface = "tenant"
)

// reservedLabels never name a tenant.
var reservedLabels = map[string]struct{}{
	PlatformSentinel: {},
	"www":            {},
}

// IsReservedLabel reports whether label may not be assigned to an institute.
func IsReservedLabel(label string) bool {
	_, ok := reservedLabels[strings.ToLower(strings.TrimSpace(label))]
	return ok
}

// Host is a parsed request host.
type Host struct {
	Name    string // lower-cased, port stripped
	Port    string
	Surface Surface
	Label   string // leading label for platform and tenant hosts
	Root    string // registrable root domain the host hangs off
}

// Loopback reports whether the host is localhost or a *.localhost name.
func (h Host) Loopback() bool {
	return isLoopbackName(h.Name)
}

// SplitHostPort separates an optional port from a Host header value.
func SplitHostPort(hostport string) (host, port string) {
	hostport = strings.TrimSpace(hostport)
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		return h, p
	}
	return strings.Trim(hostport, "[]"), ""
}

// Classify maps a Host header to a surface purely from its shape.
// rootDomain, when non-empty, pins the registrable domain; otherwise loopback hosts
// use "localhost" and other hosts their public suffix plus one label.
func Classify(hostport, rootDomain string) Host {
	name, port := SplitHostPort(hostport)
	name = strings.TrimSuffix(strings.ToLower(name), ".")
	h := Host{Name: name, Port: port, Surface: SurfacePublic}
	if name == "" {
		return h
	}
	if ip := net.ParseIP(name); ip != nil {
		h.Root = name
		return h
	}

	rootDomain = strings.Trim(strings.ToLower(rootDomain), ".")
	var sub string
	switch {
	case rootDomain != "" && name == rootDomain:
		h.Root = rootDomain
		return h
	case rootDomain != "" && strings.HasSuffix(name, "."+rootDomain):
		h.Root = rootDomain
		sub = strings.TrimSuffix(name, "."+rootDomain)
	case isLoopbackName(name):
		if name == "localhost" {
			h.Root = name
			return h
		}
		h.Root = "localhost"
		sub = strings.TrimSuffix(name, ".localhost")
	default:
		root, err := publicsuffix.EffectiveTLDPlusOne(name)
		if err != nil || root == name {
			h.Root = name
			return h
		}
		h.Root = root
		sub = strings.TrimSuffix(name, "."+root)
	}

	label := sub
	if i := strings.IndexByte(sub, '.'); i >= 0 {
		label = sub[:i]
	}
	switch {
	case label == "":
		return h
	case label == PlatformSentinel:
		h.Surface = SurfacePlatform
		h.Label = label
	case label == "www":
		return h
	default:
		h.Surface = SurfaceTenant
		h.Label = label
	}
	return h
}

// PlatformHost returns the platform host (with port) for the root of h.
func (h Host) PlatformHost() string {
	host := PlatformSentinel + "." + h.Root
	if h.Port != "" {
		host = net.JoinHostPort(host, h.Port)
	}
	return host
}

func isLoopbackName(name string) bool {
	return name == "localhost" || strings.HasSuffix(name, ".localhost")
}
