package discovery

import "github.com/mash-protocol/dnssd-go/pkg/txtrecord"

// EncodeTXT encodes an attribute record to wire bytes.
func EncodeTXT(r txtrecord.Record) ([]byte, error) {
	return txtrecord.Encode(r)
}

// DecodeTXT decodes attribute record wire bytes.
func DecodeTXT(b []byte) (txtrecord.Record, error) {
	return txtrecord.Decode(b)
}

// EncodeTXTMap encodes m with keys in sorted order.
func EncodeTXTMap(m map[string]string) ([]byte, error) {
	return txtrecord.Encode(txtrecord.FromMap(m))
}
