package store

import (
	"encoding/json"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/eigerco/auditor/internal/audit"
	"github.com/eigerco/auditor/pkg/codec"
)

// Dump renders the stored form of snap as indented JSON. Nil and empty
// collections render alike.
func Dump(snap audit.Snapshot) (string, error) {
	raw, err := codec.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	var stored audit.Snapshot
	if err := codec.Unmarshal(raw, &stored); err != nil {
		return "", fmt.Errorf("unmarshal snapshot: %w", err)
	}
	b, err := json.MarshalIndent(stored, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(b), nil
}

// Diff returns a unified diff of the dumps of a and b, empty when they are
// equal.
func Diff(a, b audit.Snapshot, fromName, toName string) (string, error) {
	aDump, err := Dump(a)
	if err != nil {
		return "", err
	}
	bDump, err := Dump(b)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(aDump),
		B:        difflib.SplitLines(bDump),
		FromFile: fromName,
		ToFile:   toName,
		Context:  1,
	})
}
