package discovery

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/thushan/olla/internal/core/domain"
)

// responseKind mirrors the discovery API's open-ended "type" field as a
// closed sum at decode time (spec.md §9): bound addresses, an explicit
// negative resolution, or anything else, which is treated the same as
// negative (empty set, forward-compatible with new verdicts).
type responseKind string

const (
	kindBound responseKind = "bound"
	kindNeg   responseKind = "neg"
)

type wireResponse struct {
	Type  string     `json:"type"`
	Addrs []wireAddr `json:"addrs"`
	Meta  map[string]any `json:"meta"`
}

type wireAddr struct {
	IP   string   `json:"ip"`
	Port int      `json:"port"`
	Meta wireMeta `json:"meta"`
}

type wireMeta struct {
	EndpointAddrWeight *float64 `json:"endpoint_addr_weight"`
}

// decodeResponse parses one discovery API body into an EndpointSet. A
// "bound" type with an invalid IP fails the whole response, matching
// spec.md §4.1's "invalid IPs fail the whole response".
func decodeResponse(body []byte) (domain.EndpointSet, error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return domain.EndpointSet{}, err
	}

	switch responseKind(wr.Type) {
	case kindBound:
		addrs := make([]domain.WeightedAddress, 0, len(wr.Addrs))
		for _, a := range wr.Addrs {
			ip := net.ParseIP(a.IP)
			if ip == nil {
				return domain.EndpointSet{}, fmt.Errorf("invalid address %q in discovery response", a.IP)
			}
			weight := domain.DefaultWeight
			if a.Meta.EndpointAddrWeight != nil {
				weight = *a.Meta.EndpointAddrWeight
			}
			addrs = append(addrs, domain.WeightedAddress{
				Addr:   &net.TCPAddr{IP: ip, Port: a.Port},
				Weight: weight,
			})
		}
		return domain.NewEndpointSet(addrs), nil
	default:
		// kindNeg and every unrecognised type both mean "known empty".
		return domain.NewEndpointSet(nil), nil
	}
}
