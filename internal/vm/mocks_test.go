package vm

import (
	"context"
	"fmt"
	"sync"

	"github.com/jbweber/harrow/internal/naming"
	"github.com/jbweber/harrow/internal/pve"
)

// mockPVEClient is a mock implementation of the pveClient interface for testing.
type mockPVEClient struct {
	mu sync.Mutex

	// Configurable behavior
	vmExistsFunc      func(ctx context.Context, vmid int) (bool, error)
	statusFunc        func(ctx context.Context, vmid int) (pve.VMState, error)
	createFunc        func(ctx context.Context, vmid int, options map[string]string) error
	setFunc           func(ctx context.Context, vmid int, options map[string]string) error
	importDiskFunc    func(ctx context.Context, vmid int, imagePath, storage, format string) (naming.VolumeRef, error)
	configFunc        func(ctx context.Context, vmid int) (map[string]string, error)
	firstFreeSlotFunc func(ctx context.Context, vmid int, bus naming.DiskBus) (string, error)
	resizeFunc        func(ctx context.Context, vmid int, slot string, growGB int) error
	startFunc         func(ctx context.Context, vmid int) error
	stopFunc          func(ctx context.Context, vmid int) error
	destroyFunc       func(ctx context.Context, vmid int) error
	listFunc          func(ctx context.Context) ([]pve.VMSummary, error)
	storageExistsFunc func(ctx context.Context, storage string) (bool, error)

	// Call tracking
	vmExistsCalls      []int
	statusCalls        []int
	createCalls        []map[string]string
	setCalls           []map[string]string
	importDiskCalls    []string // image paths
	configCalls        []int
	firstFreeSlotCalls []naming.DiskBus
	resizeCalls        []string // format: "slot+NG"
	startCalls         []int
	stopCalls          []int
	destroyCalls       []int
	listCalls          int
	storageExistsCalls []string
}

// newMockPVEClient creates a new mock client with default behavior.
func newMockPVEClient() *mockPVEClient {
	m := &mockPVEClient{}

	// Default: VM does not exist until created
	// This simulates the real flow where the VMID is free, then in use after qm create
	m.vmExistsFunc = func(ctx context.Context, vmid int) (bool, error) {
		return len(m.createCalls) > 0, nil
	}

	// Default: stopped
	m.statusFunc = func(ctx context.Context, vmid int) (pve.VMState, error) {
		return pve.StateStopped, nil
	}

	// Default: create succeeds
	m.createFunc = func(ctx context.Context, vmid int, options map[string]string) error {
		return nil
	}

	// Default: set succeeds
	m.setFunc = func(ctx context.Context, vmid int, options map[string]string) error {
		return nil
	}

	// Default: import lands in the unused0 volume for the VM
	m.importDiskFunc = func(ctx context.Context, vmid int, imagePath, storage, format string) (naming.VolumeRef, error) {
		return naming.VolumeRef{Storage: storage, VolID: fmt.Sprintf("vm-%d-disk-0", vmid)}, nil
	}

	// Default: empty config (all slots free, no description)
	m.configFunc = func(ctx context.Context, vmid int) (map[string]string, error) {
		return map[string]string{}, nil
	}

	// Default: slot 0 is free
	m.firstFreeSlotFunc = func(ctx context.Context, vmid int, bus naming.DiskBus) (string, error) {
		return naming.SlotName(bus, 0), nil
	}

	// Default: resize succeeds
	m.resizeFunc = func(ctx context.Context, vmid int, slot string, growGB int) error {
		return nil
	}

	// Default: start succeeds
	m.startFunc = func(ctx context.Context, vmid int) error {
		return nil
	}

	// Default: stop succeeds
	m.stopFunc = func(ctx context.Context, vmid int) error {
		return nil
	}

	// Default: destroy succeeds
	m.destroyFunc = func(ctx context.Context, vmid int) error {
		return nil
	}

	// Default: no VMs
	m.listFunc = func(ctx context.Context) ([]pve.VMSummary, error) {
		return []pve.VMSummary{}, nil
	}

	// Default: storage is active
	m.storageExistsFunc = func(ctx context.Context, storage string) (bool, error) {
		return true, nil
	}

	return m
}

func (m *mockPVEClient) VMExists(ctx context.Context, vmid int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vmExistsCalls = append(m.vmExistsCalls, vmid)
	return m.vmExistsFunc(ctx, vmid)
}

func (m *mockPVEClient) Status(ctx context.Context, vmid int) (pve.VMState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls = append(m.statusCalls, vmid)
	return m.statusFunc(ctx, vmid)
}

func (m *mockPVEClient) Create(ctx context.Context, vmid int, options map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls = append(m.createCalls, options)
	return m.createFunc(ctx, vmid, options)
}

func (m *mockPVEClient) Set(ctx context.Context, vmid int, options map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls = append(m.setCalls, options)
	return m.setFunc(ctx, vmid, options)
}

func (m *mockPVEClient) ImportDisk(ctx context.Context, vmid int, imagePath, storage, format string) (naming.VolumeRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.importDiskCalls = append(m.importDiskCalls, imagePath)
	return m.importDiskFunc(ctx, vmid, imagePath, storage, format)
}

func (m *mockPVEClient) Config(ctx context.Context, vmid int) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configCalls = append(m.configCalls, vmid)
	return m.configFunc(ctx, vmid)
}

func (m *mockPVEClient) FirstFreeSlot(ctx context.Context, vmid int, bus naming.DiskBus) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.firstFreeSlotCalls = append(m.firstFreeSlotCalls, bus)
	return m.firstFreeSlotFunc(ctx, vmid, bus)
}

func (m *mockPVEClient) Resize(ctx context.Context, vmid int, slot string, growGB int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resizeCalls = append(m.resizeCalls, fmt.Sprintf("%s+%dG", slot, growGB))
	return m.resizeFunc(ctx, vmid, slot, growGB)
}

func (m *mockPVEClient) Start(ctx context.Context, vmid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls = append(m.startCalls, vmid)
	return m.startFunc(ctx, vmid)
}

func (m *mockPVEClient) Stop(ctx context.Context, vmid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls = append(m.stopCalls, vmid)
	return m.stopFunc(ctx, vmid)
}

func (m *mockPVEClient) Destroy(ctx context.Context, vmid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyCalls = append(m.destroyCalls, vmid)
	return m.destroyFunc(ctx, vmid)
}

func (m *mockPVEClient) List(ctx context.Context) ([]pve.VMSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	return m.listFunc(ctx)
}

func (m *mockPVEClient) StorageExists(ctx context.Context, storage string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storageExistsCalls = append(m.storageExistsCalls, storage)
	return m.storageExistsFunc(ctx, storage)
}

// mockImageResolver is a mock implementation of the imageResolver interface for testing.
type mockImageResolver struct {
	mu sync.Mutex

	// Configurable behavior
	resolveFunc func(ctx context.Context, ref string) (string, error)

	// Call tracking
	resolveCalls []string
}

// newMockImageResolver creates a new mock resolver with default behavior.
func newMockImageResolver() *mockImageResolver {
	return &mockImageResolver{
		// Default: images resolve to a fixed cache path
		resolveFunc: func(ctx context.Context, ref string) (string, error) {
			return "/var/lib/vz/images/cache/test.qcow2", nil
		},
	}
}

func (m *mockImageResolver) Resolve(ctx context.Context, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveCalls = append(m.resolveCalls, ref)
	return m.resolveFunc(ctx, ref)
}
