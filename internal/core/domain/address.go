package domain

import (
	"fmt"
	"net"
)

// DefaultWeight is applied to a WeightedAddress when the discovery API
// omits the endpoint_addr_weight metadata field.
const DefaultWeight = 1.0

// WeightedAddress pairs a resolvable upstream socket address with the
// traffic share the resolver assigned it.
type WeightedAddress struct {
	Addr   *net.TCPAddr
	Weight float64
}

func (w WeightedAddress) String() string {
	return fmt.Sprintf("%s@%.2f", w.Addr.String(), w.Weight)
}

// EndpointSet is the de-duplicated result of one resolver update: unique
// by address, last writer wins on weight.
type EndpointSet struct {
	addrs map[string]WeightedAddress
}

// NewEndpointSet builds an EndpointSet from a slice of addresses,
// de-duplicating by address string and keeping the last weight seen.
func NewEndpointSet(addrs []WeightedAddress) EndpointSet {
	s := EndpointSet{addrs: make(map[string]WeightedAddress, len(addrs))}
	for _, a := range addrs {
		s.addrs[a.Addr.String()] = a
	}
	return s
}

// Empty reports whether the set carries no addresses at all, distinct
// from a resolver poll that simply failed to produce an update.
func (s EndpointSet) Empty() bool {
	return len(s.addrs) == 0
}

func (s EndpointSet) Len() int {
	return len(s.addrs)
}

// Addresses returns the de-duplicated weighted addresses in no particular
// order; callers that need stable iteration order should sort the result.
func (s EndpointSet) Addresses() []WeightedAddress {
	out := make([]WeightedAddress, 0, len(s.addrs))
	for _, a := range s.addrs {
		out = append(out, a)
	}
	return out
}

// Contains reports whether addr (by string form) is present in the set.
func (s EndpointSet) Contains(addr string) (WeightedAddress, bool) {
	a, ok := s.addrs[addr]
	return a, ok
}
