package vm

import (
	"context"
	"fmt"

	"github.com/jbweber/harrow/internal/config"
	"github.com/jbweber/harrow/internal/metadata"
	"github.com/jbweber/harrow/internal/pve"
)

// StatusReport describes a VM's current state on the node together with
// the provisioning config stored in its description, when present.
type StatusReport struct {
	VMID   int               `json:"vmid" yaml:"vmid"`
	Name   string            `json:"name" yaml:"name"`
	State  pve.VMState       `json:"state" yaml:"state"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`

	// Provisioned is the stored harrow config, nil for VMs harrow did
	// not provision.
	Provisioned *config.VMConfig `json:"provisioned,omitempty" yaml:"provisioned,omitempty"`
}

// Status reports a VM's state and configuration.
func Status(ctx context.Context, vmid int) (*StatusReport, error) {
	return statusWithDeps(ctx, vmid, pve.NewClient())
}

// statusWithDeps builds a status report with injected dependencies.
func statusWithDeps(ctx context.Context, vmid int, client pveClient) (*StatusReport, error) {
	exists, err := client.VMExists(ctx, vmid)
	if err != nil {
		return nil, fmt.Errorf("failed to check VM %d: %w", vmid, err)
	}
	if !exists {
		return nil, fmt.Errorf("VM %d does not exist", vmid)
	}

	state, err := client.Status(ctx, vmid)
	if err != nil {
		return nil, err
	}

	vmConfig, err := client.Config(ctx, vmid)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		VMID:   vmid,
		Name:   vmConfig["name"],
		State:  state,
		Config: vmConfig,
	}

	// Stored config is optional; VMs created outside harrow won't have it
	if stored, err := metadata.Load(ctx, client, vmid); err == nil {
		report.Provisioned = stored
	}

	return report, nil
}

// List returns summaries of all VMs on the node.
func List(ctx context.Context) ([]pve.VMSummary, error) {
	return listWithDeps(ctx, pve.NewClient())
}

// listWithDeps lists VMs with an injected client.
func listWithDeps(ctx context.Context, client pveClient) ([]pve.VMSummary, error) {
	return client.List(ctx)
}
