package vm

import (
	"context"
	"fmt"
	"log"

	"github.com/jbweber/harrow/internal/pve"
)

// Start starts an existing VM by VMID.
func Start(ctx context.Context, vmid int) error {
	return startWithDeps(ctx, vmid, pve.NewClient())
}

// startWithDeps starts a VM with an injected client.
func startWithDeps(ctx context.Context, vmid int, client pveClient) error {
	exists, err := client.VMExists(ctx, vmid)
	if err != nil {
		return fmt.Errorf("failed to check VM %d: %w", vmid, err)
	}
	if !exists {
		return fmt.Errorf("VM %d does not exist", vmid)
	}

	state, err := client.Status(ctx, vmid)
	if err != nil {
		return err
	}
	if state == pve.StateRunning {
		log.Printf("VM %d is already running", vmid)
		return nil
	}

	return client.Start(ctx, vmid)
}
