// Package naming provides naming and identity conventions for Proxmox VE
// resources. This includes disk slot names, storage volume references,
// deterministic SMBIOS UUIDs, and tag normalization.
//
// These rules are shared across provisioning, status reporting, and cleanup
// so the same VM always maps to the same identifiers.
package naming

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DiskBus is a Proxmox disk bus type.
type DiskBus string

const (
	// BusSCSI is the scsi bus (default, pairs with virtio-scsi-pci).
	BusSCSI DiskBus = "scsi"
	// BusVirtio is the virtio block bus.
	BusVirtio DiskBus = "virtio"
	// BusSATA is the sata bus.
	BusSATA DiskBus = "sata"
)

// MaxSlot returns the highest valid slot index for a bus.
// Limits match the qm configuration schema (scsi0..scsi30,
// virtio0..virtio15, sata0..sata5).
func (b DiskBus) MaxSlot() (int, error) {
	switch b {
	case BusSCSI:
		return 30, nil
	case BusVirtio:
		return 15, nil
	case BusSATA:
		return 5, nil
	default:
		return 0, fmt.Errorf("unsupported disk bus: %s", b)
	}
}

// SlotName returns the qm option name for a disk slot on a bus.
//
// Example: SlotName(BusSCSI, 0) → "scsi0"
func SlotName(bus DiskBus, index int) string {
	return fmt.Sprintf("%s%d", bus, index)
}

// harrowNamespace is the UUID namespace for deterministic VM identities.
// Generated once (uuidgen) and fixed forever; changing it would change
// every derived SMBIOS UUID.
var harrowNamespace = uuid.MustParse("8f1c5f3a-21d4-4a6b-9e07-6c2f9adcbb41")

// SMBIOSUUID derives a deterministic SMBIOS UUID from a VMID and name.
// Recreating a VM with the same VMID and name yields the same UUID, so
// cloud-init treats it as the same instance.
func SMBIOSUUID(vmid int, name string) string {
	return uuid.NewSHA1(harrowNamespace, []byte(fmt.Sprintf("%d/%s", vmid, name))).String()
}

// VolumeRef is a parsed Proxmox storage volume reference.
type VolumeRef struct {
	Storage string // storage ID, e.g. "local-lvm"
	VolID   string // volume ID within the storage, e.g. "vm-100-disk-0"
}

// String returns the canonical <storage>:<volid> form.
func (v VolumeRef) String() string {
	return fmt.Sprintf("%s:%s", v.Storage, v.VolID)
}

// ParseVolumeRef parses a <storage>:<volid> volume reference as reported
// by qm importdisk and pvesm.
func ParseVolumeRef(ref string) (VolumeRef, error) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return VolumeRef{}, fmt.Errorf("invalid volume reference %q (expected <storage>:<volid>)", ref)
	}
	return VolumeRef{Storage: parts[0], VolID: parts[1]}, nil
}

// NormalizeTags lowercases, trims, validates, and deduplicates a tag list
// while preserving order. Proxmox accepts [a-z0-9_.-] in tags; the first
// character must be alphanumeric.
func NormalizeTags(tags []string) ([]string, error) {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if err := validateTag(t); err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

func validateTag(tag string) error {
	for i, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
			if i == 0 {
				return fmt.Errorf("tag %q must start with an alphanumeric character", tag)
			}
		default:
			return fmt.Errorf("tag %q contains invalid character %q", tag, r)
		}
	}
	return nil
}

// TagString joins normalized tags into the semicolon-separated form
// expected by qm set --tags.
func TagString(tags []string) string {
	return strings.Join(tags, ";")
}
