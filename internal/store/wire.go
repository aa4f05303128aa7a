package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Result outputs are stored as canonical CBOR so identical outputs encode
// to identical blobs.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

func marshalOutputs(outputs map[string][]byte) ([]byte, error) {
	if len(outputs) == 0 {
		return nil, nil
	}
	return cborEncMode.Marshal(outputs)
}

func unmarshalOutputs(data []byte) (map[string][]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out map[string][]byte
	if err := cbor.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("store: unmarshal outputs: %w", err)
	}
	return out, nil
}
