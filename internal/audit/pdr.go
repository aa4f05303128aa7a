// Package audit provides PDR (Process Decision Record) writing for Helios.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/helios/internal/models"
	"github.com/fentz26/helios/internal/store"
)

// Actions recorded by the workspace.
const (
	ActionOpen      = "workspace.open"
	ActionClose     = "workspace.close"
	ActionReset     = "workspace.reset"
	ActionSetPath   = "workspace.set_path"
	ActionTransform = "transform"
)

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	store *store.Store
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(s *store.Store) *PDRWriter {
	return &PDRWriter{store: s}
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, subject, details string) (*models.PDREntry, error) {
	inputsHash := HashInputs(inputs)
	return w.store.WritePDR(action, inputsHash, outcome, subject, details)
}

// HashInputs creates a SHA256 hash of the JSON form of inputs.
func HashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	return HashBytes(data)
}

// HashBytes returns the hex SHA256 of data.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
