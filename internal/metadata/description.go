// Package metadata persists the harrow provisioning configuration inside
// the VM itself, using the Proxmox VM description (qm set --description).
// The config travels with the VM, so later inspection needs no external
// state. The YAML document is fenced by marker lines; description text
// outside the fence is preserved.
package metadata

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/harrow/internal/config"
)

const (
	// beginMarker opens the fenced config block in the VM description.
	beginMarker = "--- harrow config ---"

	// endMarker closes the fenced config block.
	endMarker = "--- end harrow config ---"
)

// pveClient is the subset of pve.Client operations this package needs.
type pveClient interface {
	Set(ctx context.Context, vmid int, options map[string]string) error
	Config(ctx context.Context, vmid int) (map[string]string, error)
}

// Store writes the provisioning config into the VM description, replacing
// any previous harrow block and keeping surrounding description text.
func Store(ctx context.Context, client pveClient, cfg *config.VMConfig) error {
	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	existing, err := currentDescription(ctx, client, cfg.VMID)
	if err != nil {
		return err
	}

	rest := stripBlock(existing)
	block := fmt.Sprintf("%s\n%s%s", beginMarker, yamlData, endMarker)

	description := block
	if rest != "" {
		description = rest + "\n\n" + block
	}

	if err := client.Set(ctx, cfg.VMID, map[string]string{"description": description}); err != nil {
		return fmt.Errorf("failed to store config in VM description: %w", err)
	}
	return nil
}

// Load reads the provisioning config back from the VM description.
func Load(ctx context.Context, client pveClient, vmid int) (*config.VMConfig, error) {
	description, err := currentDescription(ctx, client, vmid)
	if err != nil {
		return nil, err
	}

	block, found := extractBlock(description)
	if !found {
		return nil, fmt.Errorf("VM %d has no stored harrow config", vmid)
	}

	var cfg config.VMConfig
	if err := yaml.Unmarshal([]byte(block), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored config: %w", err)
	}
	return &cfg, nil
}

// Exists reports whether a VM carries a stored harrow config.
func Exists(ctx context.Context, client pveClient, vmid int) bool {
	description, err := currentDescription(ctx, client, vmid)
	if err != nil {
		return false
	}
	_, found := extractBlock(description)
	return found
}

// currentDescription reads and decodes the VM description. qm config
// prints the description percent-encoded (newlines as %0A).
func currentDescription(ctx context.Context, client pveClient, vmid int) (string, error) {
	cfg, err := client.Config(ctx, vmid)
	if err != nil {
		return "", fmt.Errorf("failed to read VM %d description: %w", vmid, err)
	}

	raw := cfg["description"]
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		// Not percent-encoded (older qm output); use as-is
		return raw, nil
	}
	return decoded, nil
}

// extractBlock returns the YAML between the fence markers.
func extractBlock(description string) (string, bool) {
	start := strings.Index(description, beginMarker)
	if start < 0 {
		return "", false
	}
	rest := description[start+len(beginMarker):]
	end := strings.Index(rest, endMarker)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]) + "\n", true
}

// stripBlock removes the fenced config block, returning the remaining
// description text.
func stripBlock(description string) string {
	start := strings.Index(description, beginMarker)
	if start < 0 {
		return strings.TrimSpace(description)
	}
	rest := description[start+len(beginMarker):]
	end := strings.Index(rest, endMarker)
	if end < 0 {
		// Unterminated block, drop everything from the begin marker
		return strings.TrimSpace(description[:start])
	}
	return strings.TrimSpace(description[:start] + rest[end+len(endMarker):])
}
