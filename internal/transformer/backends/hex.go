package backends

import (
	"context"
	"encoding/hex"

	"github.com/fentz26/helios/internal/transformer"
)

// Hex renders any entry as a canonical hex dump.
type Hex struct{}

// NewHex creates the hex viewer.
func NewHex() *Hex { return &Hex{} }

func (*Hex) Descriptor() transformer.Descriptor {
	return transformer.Descriptor{
		ID:        "hex",
		Name:      "Hex",
		Kind:      transformer.KindViewer,
		Execution: transformer.InProcess,
	}
}

func (*Hex) Applicable(string, []byte) bool { return true }

func (*Hex) Precheck(*transformer.Request) string { return "" }

func (*Hex) Transform(_ context.Context, req *transformer.Request) (*transformer.Result, error) {
	res := &transformer.Result{}
	res.Set(req.OutputKey(), []byte(hex.Dump(req.Data)))
	return res, nil
}
