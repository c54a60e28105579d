package collective

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// EncodeInts packs values as a count followed by zig-zag varints, the same
// layout protobuf uses for packed sint64 fields.
func EncodeInts(values []int) []byte {
	b := make([]byte, 0, 1+2*len(values))
	b = protowire.AppendVarint(b, uint64(len(values)))
	for _, v := range values {
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
	}
	return b
}

// DecodeInts reverses EncodeInts.
func DecodeInts(b []byte) ([]int, error) {
	n, m := protowire.ConsumeVarint(b)
	if m < 0 {
		return nil, fmt.Errorf("collective: decode count: %w", protowire.ParseError(m))
	}
	b = b[m:]
	if n > uint64(len(b)) {
		return nil, fmt.Errorf("collective: payload claims %d values in %d bytes", n, len(b))
	}
	out := make([]int, n)
	for i := range out {
		v, m := protowire.ConsumeVarint(b)
		if m < 0 {
			return nil, fmt.Errorf("collective: decode value %d: %w", i, protowire.ParseError(m))
		}
		out[i] = int(protowire.DecodeZigZag(v))
		b = b[m:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("collective: %d trailing bytes", len(b))
	}
	return out, nil
}
