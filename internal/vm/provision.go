package vm

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jbweber/harrow/internal/cloudinit"
	"github.com/jbweber/harrow/internal/config"
	"github.com/jbweber/harrow/internal/image"
	"github.com/jbweber/harrow/internal/metadata"
	"github.com/jbweber/harrow/internal/naming"
	"github.com/jbweber/harrow/internal/pve"
)

// ProvisionOptions tweak the provisioning flow beyond the VM config.
type ProvisionOptions struct {
	// ImageCacheDir overrides the download cache directory.
	ImageCacheDir string

	// RefreshImage forces a re-download of a cached image.
	RefreshImage bool

	// SnippetsDir overrides the snippets directory for custom user-data.
	SnippetsDir string
}

// Provision creates a cloud-init-enabled VM from a provisioning
// configuration.
//
// This orchestrates the entire flow:
//  1. Pre-flight checks (VMID free, storage active)
//  2. Acquire the disk image (local file or download)
//  3. Create the VM shell (qm create)
//  4. Import the disk image and parse the resulting volume reference
//  5. Attach the disk to the first free slot on the configured bus
//  6. Attach the cloud-init drive and set boot order
//  7. Configure cloud-init identity and networking
//  8. Optionally grow the boot disk
//  9. Apply tags and store the config in the VM description
// 10. Optionally start the VM
//
// Once the VM exists on the node, any failure destroys it again so a
// failed provision leaves nothing behind.
func Provision(ctx context.Context, cfg *config.VMConfig, opts ProvisionOptions) error {
	client := pve.NewClient()

	resolver := image.NewResolver()
	if opts.ImageCacheDir != "" {
		resolver.CacheDir = opts.ImageCacheDir
	}
	resolver.Refresh = opts.RefreshImage

	return provisionWithDeps(ctx, cfg, opts, client, resolver)
}

// provisionWithDeps provisions a VM with injected dependencies.
// This allows for testing by accepting interfaces instead of concrete types.
func provisionWithDeps(ctx context.Context, cfg *config.VMConfig, opts ProvisionOptions, client pveClient, resolver imageResolver) error {
	// State tracking for cleanup
	vmCreated := false

	var provisionErr error
	defer func() {
		if provisionErr != nil && vmCreated {
			cleanupWithDeps(ctx, cfg.VMID, client)
		}
	}()

	// Step 1: Check the VMID is free
	log.Printf("Checking if VMID %d is in use...", cfg.VMID)
	exists, err := client.VMExists(ctx, cfg.VMID)
	if err != nil {
		provisionErr = fmt.Errorf("failed to check VMID %d: %w", cfg.VMID, err)
		return provisionErr
	}
	if exists {
		provisionErr = fmt.Errorf("VM %d already exists", cfg.VMID)
		return provisionErr
	}

	// Step 2: Check the target storage is active
	log.Printf("Checking storage %q...", cfg.Storage)
	active, err := client.StorageExists(ctx, cfg.Storage)
	if err != nil {
		provisionErr = fmt.Errorf("failed to check storage: %w", err)
		return provisionErr
	}
	if !active {
		provisionErr = fmt.Errorf("storage %q is not configured or not active", cfg.Storage)
		return provisionErr
	}

	// Step 3: Acquire the disk image before touching the node
	log.Printf("Resolving image %s...", cfg.Image)
	imagePath, err := resolver.Resolve(ctx, cfg.Image)
	if err != nil {
		provisionErr = fmt.Errorf("failed to resolve image: %w", err)
		return provisionErr
	}

	// Step 4: Create the VM shell
	log.Printf("Creating VM %d (%s)...", cfg.VMID, cfg.Name)
	createOpts := map[string]string{
		"name":    cfg.Name,
		"memory":  strconv.Itoa(cfg.MemoryMB),
		"cores":   strconv.Itoa(cfg.Cores),
		"cpu":     cfg.CPUType,
		"net0":    cfg.Net0(),
		"scsihw":  "virtio-scsi-pci",
		"ostype":  "l26",
		"agent":   "enabled=1",
		"serial0": "socket",
		"vga":     "serial0",
		"smbios1": fmt.Sprintf("uuid=%s", naming.SMBIOSUUID(cfg.VMID, cfg.Name)),
	}
	if provisionErr = client.Create(ctx, cfg.VMID, createOpts); provisionErr != nil {
		return provisionErr
	}
	vmCreated = true

	// Step 5: Import the disk image
	log.Printf("Importing disk %s into %s...", imagePath, cfg.Storage)
	volRef, err := client.ImportDisk(ctx, cfg.VMID, imagePath, cfg.Storage, image.Format(imagePath))
	if err != nil {
		provisionErr = err
		return provisionErr
	}
	log.Printf("Imported as %s", volRef)

	// Step 6: Attach the disk to the first free slot
	slot, err := client.FirstFreeSlot(ctx, cfg.VMID, cfg.Bus)
	if err != nil {
		provisionErr = fmt.Errorf("failed to find a free %s slot: %w", cfg.Bus, err)
		return provisionErr
	}
	log.Printf("Attaching disk to %s...", slot)

	diskOpts := map[string]string{
		slot:   volRef.String(),
		"boot": fmt.Sprintf("order=%s", slot),
		"ide2": fmt.Sprintf("%s:cloudinit", cfg.Storage),
	}
	if provisionErr = client.Set(ctx, cfg.VMID, diskOpts); provisionErr != nil {
		return provisionErr
	}

	// Step 7: Configure cloud-init
	log.Printf("Configuring cloud-init...")
	if provisionErr = applyCloudInit(ctx, cfg, opts, client); provisionErr != nil {
		return provisionErr
	}

	// Step 8: Grow the boot disk if requested
	if cfg.ResizeGB > 0 {
		log.Printf("Growing %s by %dG...", slot, cfg.ResizeGB)
		if provisionErr = client.Resize(ctx, cfg.VMID, slot, cfg.ResizeGB); provisionErr != nil {
			return provisionErr
		}
	}

	// Step 9: Tags and stored config
	if tags := cfg.NormalizedTags(); len(tags) > 0 {
		log.Printf("Applying tags: %s", naming.TagString(tags))
		if provisionErr = client.Set(ctx, cfg.VMID, map[string]string{"tags": naming.TagString(tags)}); provisionErr != nil {
			return provisionErr
		}
	}

	log.Printf("Storing provisioning config in VM description...")
	if provisionErr = metadata.Store(ctx, client, cfg); provisionErr != nil {
		return provisionErr
	}

	// Step 10: Start the VM
	if cfg.Start {
		log.Printf("Starting VM %d...", cfg.VMID)
		if provisionErr = client.Start(ctx, cfg.VMID); provisionErr != nil {
			return provisionErr
		}
	}

	log.Printf("VM %d (%s) provisioned successfully!", cfg.VMID, cfg.Name)
	return nil
}

// applyCloudInit sets the cloud-init networking and identity options.
func applyCloudInit(ctx context.Context, cfg *config.VMConfig, opts ProvisionOptions, client pveClient) error {
	ciOpts := map[string]string{
		"ipconfig0": cloudinit.IPConfigString(cfg.Network.IPConfig),
	}

	if len(cfg.Network.DNSServers) > 0 {
		ciOpts["nameserver"] = strings.Join(cfg.Network.DNSServers, " ")
	}
	if cfg.Network.SearchDomain != "" {
		ciOpts["searchdomain"] = cfg.Network.SearchDomain
	}

	// sshkeys is passed as a file path; keep the temp file alive until qm
	// has read it, then always remove it
	var sshKeysFile string
	if cfg.CloudInit != nil {
		if cfg.CloudInit.User != "" {
			ciOpts["ciuser"] = cfg.CloudInit.User
		}
		if cfg.CloudInit.PasswordHash != "" {
			ciOpts["cipassword"] = cfg.CloudInit.PasswordHash
		}
		if len(cfg.CloudInit.SSHKeys) > 0 {
			path, err := cloudinit.WriteSSHKeysFile(cfg.CloudInit.SSHKeys)
			if err != nil {
				return err
			}
			sshKeysFile = path
			ciOpts["sshkeys"] = path
		}
		if cfg.CloudInit.UserData != "" {
			ref, err := cloudinit.InstallSnippet(cfg.CloudInit.UserData, cfg.VMID, opts.SnippetsDir)
			if err != nil {
				return fmt.Errorf("failed to install user-data snippet: %w", err)
			}
			ciOpts["cicustom"] = ref
		}
	}

	err := client.Set(ctx, cfg.VMID, ciOpts)

	if sshKeysFile != "" {
		if removeErr := os.Remove(sshKeysFile); removeErr != nil {
			log.Printf("Warning: failed to remove sshkeys temp file: %v", removeErr)
		}
	}

	return err
}

// cleanupWithDeps destroys a partially provisioned VM.
//
// This is best-effort: it logs errors but never returns one, so the
// original provisioning failure is what the caller sees.
func cleanupWithDeps(ctx context.Context, vmid int, client pveClient) {
	log.Printf("Cleaning up after failed provisioning of VM %d...", vmid)

	if err := client.Stop(ctx, vmid); err != nil {
		log.Printf("Note: stop during cleanup failed (VM was likely not running): %v", err)
	}

	if err := client.Destroy(ctx, vmid); err != nil {
		log.Printf("Warning: failed to destroy VM %d during cleanup: %v", vmid, err)
		return
	}

	log.Printf("Cleanup complete")
}
