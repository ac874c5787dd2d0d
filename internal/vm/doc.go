// Package vm provides high-level VM lifecycle operations.
//
// This package orchestrates the low-level components (config, image,
// cloudinit, pve, metadata) into the operations the CLI exposes:
//   - Provision: create a cloud-init-enabled VM end to end
//   - Destroy: stop and remove a VM and its harrow artifacts
//   - Status: report a VM's state and stored provisioning config
//   - List: list VMs on the node
//
// Error Handling:
//
// Provision uses best-effort cleanup on failure: once the VM has been
// created on the node, any later failure destroys it again so a failed
// provision leaves nothing behind. Cleanup errors are logged but do not
// mask the original failure.
//
// Context Support:
//
// All operations accept a context.Context. Cancelling the context aborts
// the in-flight node command; cleanup is still attempted.
package vm
