package vm

import (
	"context"
	"fmt"
	"log"

	"github.com/jbweber/harrow/internal/cloudinit"
	"github.com/jbweber/harrow/internal/pve"
)

// Destroy stops and removes a VM by VMID.
//
// This orchestrates the destruction process:
//  1. Check the VM exists
//  2. Force-stop it if running
//  3. Destroy it with --purge (removes owned disks and job references)
//  4. Remove the harrow user-data snippet if one was installed
//
// Snippet cleanup is best-effort: a failure there is logged but does not
// fail the operation, since the VM itself is already gone.
func Destroy(ctx context.Context, vmid int) error {
	return destroyWithDeps(ctx, vmid, pve.NewClient(), "")
}

// destroyWithDeps destroys a VM with injected dependencies.
// This allows for testing by accepting interfaces instead of concrete types.
func destroyWithDeps(ctx context.Context, vmid int, client pveClient, snippetsDir string) error {
	// Step 1: Check the VM exists
	log.Printf("Checking if VM %d exists...", vmid)
	exists, err := client.VMExists(ctx, vmid)
	if err != nil {
		return fmt.Errorf("failed to check VM %d: %w", vmid, err)
	}
	if !exists {
		return fmt.Errorf("VM %d does not exist", vmid)
	}

	// Step 2: Stop it if running
	state, err := client.Status(ctx, vmid)
	if err != nil {
		return err
	}
	if state == pve.StateRunning || state == pve.StatePaused {
		log.Printf("Stopping VM %d...", vmid)
		if err := client.Stop(ctx, vmid); err != nil {
			return err
		}
	}

	// Step 3: Destroy the VM and its owned disks
	log.Printf("Destroying VM %d...", vmid)
	if err := client.Destroy(ctx, vmid); err != nil {
		return err
	}

	// Step 4: Remove the user-data snippet if we installed one
	if err := cloudinit.RemoveSnippet(vmid, snippetsDir); err != nil {
		log.Printf("Warning: %v", err)
	}

	log.Printf("VM %d destroyed", vmid)
	return nil
}
