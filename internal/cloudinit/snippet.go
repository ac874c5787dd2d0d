package cloudinit

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSnippetsDir is where the local storage keeps snippets on a
// standard Proxmox node.
const DefaultSnippetsDir = "/var/lib/vz/snippets"

// InstallSnippet copies a custom user-data file into the node's snippets
// directory under a VM-scoped name and returns the qm --cicustom option
// value referencing it.
//
// The snippets content type must be enabled on the storage for Proxmox to
// pick the file up; that is a node configuration concern, not ours.
func InstallSnippet(userDataPath string, vmid int, snippetsDir string) (string, error) {
	if snippetsDir == "" {
		snippetsDir = DefaultSnippetsDir
	}

	data, err := os.ReadFile(userDataPath)
	if err != nil {
		return "", fmt.Errorf("failed to read user-data file: %w", err)
	}

	if err := os.MkdirAll(snippetsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snippets directory %s: %w", snippetsDir, err)
	}

	name := fmt.Sprintf("harrow-%d-user-data.yaml", vmid)
	target := filepath.Join(snippetsDir, name)
	if err := os.WriteFile(target, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snippet %s: %w", target, err)
	}

	return fmt.Sprintf("user=local:snippets/%s", name), nil
}

// RemoveSnippet deletes a VM's user-data snippet if present. Used during
// VM destruction; a missing snippet is not an error.
func RemoveSnippet(vmid int, snippetsDir string) error {
	if snippetsDir == "" {
		snippetsDir = DefaultSnippetsDir
	}

	target := filepath.Join(snippetsDir, fmt.Sprintf("harrow-%d-user-data.yaml", vmid))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snippet %s: %w", target, err)
	}
	return nil
}
