package cloudinit

import (
	"bytes"
	"fmt"

	"github.com/kdomanski/iso9660"

	"github.com/jbweber/harrow/internal/config"
	"github.com/jbweber/harrow/internal/naming"
)

// GenerateSeedISO creates a cloud-init NoCloud seed ISO from the VM
// configuration.
//
// The generated ISO contains three files in the root directory:
//   - user-data: Cloud-config YAML with hostname, user, SSH keys, password
//   - meta-data: Instance metadata (instance-id, local-hostname)
//   - network-config: Netplan v2 network configuration
//
// The ISO volume label is "CIDATA" as required by the NoCloud datasource.
// Proxmox builds its own cloud-init drive from the qm options, so the seed
// ISO is only for booting the same configuration outside Proxmox (or for
// inspecting what the VM will receive).
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
//
// Returns the ISO image as a byte slice.
func GenerateSeedISO(cfg *config.VMConfig) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("VM configuration cannot be nil")
	}

	userData, err := GenerateUserData(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate user-data: %w", err)
	}

	instanceID := naming.SMBIOSUUID(cfg.VMID, cfg.Name)
	metaData, err := GenerateMetaData(cfg, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate meta-data: %w", err)
	}

	networkConfig, err := GenerateNetworkConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate network-config: %w", err)
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO writer: %w", err)
	}
	defer func() {
		// Cleanup removes the writer's temp staging files; the ISO bytes
		// are already in the buffer by then
		_ = writer.Cleanup()
	}()

	if err := writer.AddFile(bytes.NewReader([]byte(userData)), "user-data"); err != nil {
		return nil, fmt.Errorf("failed to add user-data: %w", err)
	}
	if err := writer.AddFile(bytes.NewReader([]byte(metaData)), "meta-data"); err != nil {
		return nil, fmt.Errorf("failed to add meta-data: %w", err)
	}
	if err := writer.AddFile(bytes.NewReader([]byte(networkConfig)), "network-config"); err != nil {
		return nil, fmt.Errorf("failed to add network-config: %w", err)
	}

	var buf bytes.Buffer

	// Volume identifier must be uppercase CIDATA per the NoCloud spec
	if err := writer.WriteTo(&buf, "CIDATA"); err != nil {
		return nil, fmt.Errorf("failed to write ISO image: %w", err)
	}

	return buf.Bytes(), nil
}
