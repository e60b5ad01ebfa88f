package workspace

import (
	"context"

	"github.com/Aman-CERP/agentcore/internal/toolset"
)

// Adapter bridges a TaskWorkspace into the toolset.FileReader/FileWriter
// interfaces so the readFile/writeFile tools (spec.md §4.7) apply their
// side effects through the Workspace API rather than touching disk
// directly, matching spec.md §6's "side effects are applied via
// Workspace APIs" wire contract.
type Adapter struct {
	tw *TaskWorkspace
}

// NewAdapter wraps tw for tool consumption.
func NewAdapter(tw *TaskWorkspace) *Adapter {
	return &Adapter{tw: tw}
}

var (
	_ toolset.FileReader = (*Adapter)(nil)
	_ toolset.FileWriter = (*Adapter)(nil)
)

// Read satisfies toolset.FileReader.
func (a *Adapter) Read(ctx context.Context, path string) (string, bool, error) {
	content, ok := a.tw.Read(path)
	return content, ok, nil
}

// WriteFile satisfies toolset.FileWriter. An existing file is modified in
// place; a new path is created.
func (a *Adapter) WriteFile(ctx context.Context, path, content string) error {
	if _, ok := a.tw.Read(path); ok {
		a.tw.ModifyFile(path, content)
		return nil
	}
	a.tw.CreateFile(path, content)
	return nil
}
