package pve

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jbweber/harrow/internal/naming"
)

// VMState is the lifecycle state reported by qm status.
type VMState string

const (
	// StateRunning means the VM is running.
	StateRunning VMState = "running"
	// StateStopped means the VM exists but is not running.
	StateStopped VMState = "stopped"
	// StatePaused means the VM is suspended.
	StatePaused VMState = "paused"
	// StateUnknown covers states this tool does not act on.
	StateUnknown VMState = "unknown"
)

// VMSummary is one row of qm list output.
type VMSummary struct {
	VMID     int     `json:"vmid" yaml:"vmid"`
	Name     string  `json:"name" yaml:"name"`
	State    VMState `json:"state" yaml:"state"`
	MemoryMB int     `json:"memory_mb" yaml:"memory_mb"`
	DiskGB   float64 `json:"disk_gb" yaml:"disk_gb"`
	PID      int     `json:"pid,omitempty" yaml:"pid,omitempty"`
}

// Client drives the qm and pvesm commands on a Proxmox VE node.
type Client struct {
	run runner
}

// NewClient returns a client that executes commands on the local node.
func NewClient() *Client {
	return &Client{run: execRunner{}}
}

// newClientWithRunner is used by tests to inject a fake runner.
func newClientWithRunner(r runner) *Client {
	return &Client{run: r}
}

// VMExists reports whether a VM with the given VMID exists on the node.
// qm status exits non-zero for unknown VMIDs, which is the only signal
// the CLI gives us.
func (c *Client) VMExists(ctx context.Context, vmid int) (bool, error) {
	out, err := c.run.Run(ctx, "qm", "status", strconv.Itoa(vmid))
	if err != nil {
		if strings.Contains(out, "does not exist") {
			return false, nil
		}
		// Any other failure is a real error (node down, permissions, ...)
		return false, fmt.Errorf("failed to check VM %d: %w", vmid, err)
	}
	return true, nil
}

// Status returns the lifecycle state of a VM.
func (c *Client) Status(ctx context.Context, vmid int) (VMState, error) {
	out, err := c.run.Run(ctx, "qm", "status", strconv.Itoa(vmid))
	if err != nil {
		return StateUnknown, fmt.Errorf("failed to get status of VM %d: %w", vmid, err)
	}
	return parseStatus(out), nil
}

// Create creates a new VM. Options are passed through as qm create
// --<key> <value> pairs.
func (c *Client) Create(ctx context.Context, vmid int, options map[string]string) error {
	args := append([]string{"create", strconv.Itoa(vmid)}, optionArgs(options)...)
	if _, err := c.run.Run(ctx, "qm", args...); err != nil {
		return fmt.Errorf("failed to create VM %d: %w", vmid, err)
	}
	return nil
}

// Set applies configuration options to an existing VM via qm set.
func (c *Client) Set(ctx context.Context, vmid int, options map[string]string) error {
	if len(options) == 0 {
		return nil
	}
	args := append([]string{"set", strconv.Itoa(vmid)}, optionArgs(options)...)
	if _, err := c.run.Run(ctx, "qm", args...); err != nil {
		return fmt.Errorf("failed to set options on VM %d: %w", vmid, err)
	}
	return nil
}

// ImportDisk imports a disk image into a storage and returns the volume
// reference of the resulting unused disk, parsed from the command output.
func (c *Client) ImportDisk(ctx context.Context, vmid int, imagePath, storage, format string) (naming.VolumeRef, error) {
	args := []string{"importdisk", strconv.Itoa(vmid), imagePath, storage}
	if format != "" {
		args = append(args, "--format", format)
	}
	out, err := c.run.Run(ctx, "qm", args...)
	if err != nil {
		return naming.VolumeRef{}, fmt.Errorf("failed to import disk %s: %w", imagePath, err)
	}

	ref, err := parseImportedDisk(out)
	if err != nil {
		return naming.VolumeRef{}, fmt.Errorf("disk imported but volume reference not found in output: %w", err)
	}
	return ref, nil
}

// Config returns the VM configuration as parsed qm config key/value pairs.
func (c *Client) Config(ctx context.Context, vmid int) (map[string]string, error) {
	out, err := c.run.Run(ctx, "qm", "config", strconv.Itoa(vmid))
	if err != nil {
		return nil, fmt.Errorf("failed to read config of VM %d: %w", vmid, err)
	}
	return parseConfig(out), nil
}

// FirstFreeSlot finds the lowest unoccupied disk slot on the given bus by
// probing sequential indices against the VM configuration.
func (c *Client) FirstFreeSlot(ctx context.Context, vmid int, bus naming.DiskBus) (string, error) {
	cfg, err := c.Config(ctx, vmid)
	if err != nil {
		return "", err
	}
	return firstFreeSlot(cfg, bus)
}

// Resize grows a disk by the given number of GiB (qm resize +<N>G).
func (c *Client) Resize(ctx context.Context, vmid int, slot string, growGB int) error {
	if growGB <= 0 {
		return fmt.Errorf("resize amount must be > 0 GiB, got %d", growGB)
	}
	size := fmt.Sprintf("+%dG", growGB)
	if _, err := c.run.Run(ctx, "qm", "resize", strconv.Itoa(vmid), slot, size); err != nil {
		return fmt.Errorf("failed to resize %s on VM %d by %s: %w", slot, vmid, size, err)
	}
	return nil
}

// Start starts a VM.
func (c *Client) Start(ctx context.Context, vmid int) error {
	if _, err := c.run.Run(ctx, "qm", "start", strconv.Itoa(vmid)); err != nil {
		return fmt.Errorf("failed to start VM %d: %w", vmid, err)
	}
	return nil
}

// Stop force-stops a VM. Stopping an already stopped VM is not an error.
func (c *Client) Stop(ctx context.Context, vmid int) error {
	out, err := c.run.Run(ctx, "qm", "stop", strconv.Itoa(vmid))
	if err != nil {
		if strings.Contains(out, "not running") {
			return nil
		}
		return fmt.Errorf("failed to stop VM %d: %w", vmid, err)
	}
	return nil
}

// Destroy deletes a VM and purges it from job configurations. Unreferenced
// owned disks are removed as well.
func (c *Client) Destroy(ctx context.Context, vmid int) error {
	args := []string{"destroy", strconv.Itoa(vmid), "--purge", "--destroy-unreferenced-disks"}
	if _, err := c.run.Run(ctx, "qm", args...); err != nil {
		return fmt.Errorf("failed to destroy VM %d: %w", vmid, err)
	}
	return nil
}

// List returns a summary of all VMs on the node.
func (c *Client) List(ctx context.Context) ([]VMSummary, error) {
	out, err := c.run.Run(ctx, "qm", "list")
	if err != nil {
		return nil, fmt.Errorf("failed to list VMs: %w", err)
	}
	return parseList(out)
}

// StorageExists reports whether a storage ID is configured and active,
// parsed from the pvesm status table.
func (c *Client) StorageExists(ctx context.Context, storage string) (bool, error) {
	out, err := c.run.Run(ctx, "pvesm", "status")
	if err != nil {
		return false, fmt.Errorf("failed to query storage status: %w", err)
	}
	return storageActive(out, storage), nil
}

// StoragePath resolves a volume reference to a filesystem path via
// pvesm path. Only meaningful for file-backed storages.
func (c *Client) StoragePath(ctx context.Context, ref naming.VolumeRef) (string, error) {
	out, err := c.run.Run(ctx, "pvesm", "path", ref.String())
	if err != nil {
		return "", fmt.Errorf("failed to resolve path of %s: %w", ref, err)
	}
	path := strings.TrimSpace(out)
	if path == "" {
		return "", fmt.Errorf("pvesm returned no path for %s", ref)
	}
	return path, nil
}

// optionArgs converts an option map to sorted --key value argument pairs.
// Sorting keeps command lines deterministic for logging and tests.
func optionArgs(options map[string]string) []string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(options)*2)
	for _, k := range keys {
		args = append(args, "--"+k, options[k])
	}
	return args
}
