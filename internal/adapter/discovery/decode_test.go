package discovery

import "testing"

func TestDecodeResponse_BoundDefaultsWeight(t *testing.T) {
	body := []byte(`{"type":"bound","addrs":[{"ip":"10.0.0.1","port":80,"meta":{}}]}`)

	set, err := decodeResponse(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addrs := set.Addresses()
	if len(addrs) != 1 {
		t.Fatalf("expected 1 address, got %d", len(addrs))
	}
	if addrs[0].Weight != 1.0 {
		t.Errorf("expected default weight 1.0, got %v", addrs[0].Weight)
	}
}

func TestDecodeResponse_BoundWithExplicitWeight(t *testing.T) {
	body := []byte(`{"type":"bound","addrs":[{"ip":"10.0.0.1","port":80,"meta":{"endpoint_addr_weight":3.5}}]}`)

	set, err := decodeResponse(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Addresses()[0].Weight != 3.5 {
		t.Errorf("expected weight 3.5, got %v", set.Addresses()[0].Weight)
	}
}

func TestDecodeResponse_NegativeIsEmptySet(t *testing.T) {
	set, err := decodeResponse([]byte(`{"type":"neg"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Empty() {
		t.Errorf("expected empty set, got %d addrs", set.Len())
	}
}

func TestDecodeResponse_UnknownTypeIsEmptySet(t *testing.T) {
	set, err := decodeResponse([]byte(`{"type":"something-new"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Empty() {
		t.Errorf("expected empty set for unknown type, got %d addrs", set.Len())
	}
}

func TestDecodeResponse_InvalidIPFailsWholeResponse(t *testing.T) {
	body := []byte(`{"type":"bound","addrs":[{"ip":"not-an-ip","port":80,"meta":{}}]}`)

	_, err := decodeResponse(body)
	if err == nil {
		t.Fatal("expected an error for an invalid IP address")
	}
}

func TestDecodeResponse_MissingAddrsIsTolerated(t *testing.T) {
	set, err := decodeResponse([]byte(`{"type":"bound"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Empty() {
		t.Errorf("expected empty set when addrs is absent, got %d addrs", set.Len())
	}
}

func TestDecodeResponse_MalformedJSON(t *testing.T) {
	_, err := decodeResponse([]byte(`not json`))
	if err == nil {
		t.Fatal("expected a decode error for malformed JSON")
	}
}
