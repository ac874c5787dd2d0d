package vm

import (
	"context"

	"github.com/jbweber/harrow/internal/naming"
	"github.com/jbweber/harrow/internal/pve"
)

// pveClient defines the node operations needed for VM management.
//
// In production, this is satisfied by *pve.Client.
// In tests, this is satisfied by mock implementations.
type pveClient interface {
	// VMExists reports whether a VMID is in use on the node
	VMExists(ctx context.Context, vmid int) (bool, error)

	// Status returns the lifecycle state of a VM
	Status(ctx context.Context, vmid int) (pve.VMState, error)

	// Create creates a VM with qm create options
	Create(ctx context.Context, vmid int, options map[string]string) error

	// Set applies qm set options to a VM
	Set(ctx context.Context, vmid int, options map[string]string) error

	// ImportDisk imports a disk image and returns the new volume reference
	ImportDisk(ctx context.Context, vmid int, imagePath, storage, format string) (naming.VolumeRef, error)

	// Config returns the parsed qm config of a VM
	Config(ctx context.Context, vmid int) (map[string]string, error)

	// FirstFreeSlot finds the lowest unoccupied disk slot on a bus
	FirstFreeSlot(ctx context.Context, vmid int, bus naming.DiskBus) (string, error)

	// Resize grows a disk by the given number of GiB
	Resize(ctx context.Context, vmid int, slot string, growGB int) error

	// Start starts a VM
	Start(ctx context.Context, vmid int) error

	// Stop force-stops a VM
	Stop(ctx context.Context, vmid int) error

	// Destroy removes a VM and its owned disks
	Destroy(ctx context.Context, vmid int) error

	// List returns summaries of all VMs on the node
	List(ctx context.Context) ([]pve.VMSummary, error)

	// StorageExists reports whether a storage ID is active on the node
	StorageExists(ctx context.Context, storage string) (bool, error)
}

// imageResolver resolves image references to local file paths.
//
// In production, this is satisfied by *image.Resolver.
type imageResolver interface {
	// Resolve returns a local path for an image reference, downloading
	// remote references first
	Resolve(ctx context.Context, ref string) (string, error)
}
