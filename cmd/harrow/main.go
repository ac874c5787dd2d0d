package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jbweber/harrow/internal/config"
	"github.com/jbweber/harrow/internal/output"
	"github.com/jbweber/harrow/internal/vm"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "harrow",
	Short: "Harrow - Proxmox VE cloud-init VM provisioning tool",
	Long: `Harrow is a CLI tool for provisioning cloud-init-enabled VMs on a
Proxmox VE node with simple YAML configuration.

It wraps the qm and pvesm commands to create a VM, import a cloud image
(local file or download), attach it to the first free disk slot, configure
cloud-init networking and identity, and optionally start the VM.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

// Flags shared across subcommands
var (
	outputFormat string
	noHeaders    bool

	refreshImage  bool
	imageCacheDir string
	snippetsDir   string

	seedOutput string
)

func init() {
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(seedCmd)

	createCmd.Flags().BoolVar(&refreshImage, "refresh-image", false, "re-download the image even if cached")
	createCmd.Flags().StringVar(&imageCacheDir, "cache-dir", "", "override the image download cache directory")
	createCmd.Flags().StringVar(&snippetsDir, "snippets-dir", "", "override the snippets directory for custom user-data")

	statusCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, yaml, json)")
	listCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, yaml, json)")
	listCmd.Flags().BoolVar(&noHeaders, "no-headers", false, "omit headers in table output")

	seedCmd.Flags().StringVarP(&seedOutput, "output", "o", "seed.iso", "path for the generated seed ISO")
}

var createCmd = &cobra.Command{
	Use:   "create <config.yaml>",
	Short: "Provision a VM from a configuration file",
	Long: `Provision a new cloud-init-enabled virtual machine from a YAML
configuration file.

The configuration file defines the VMID, name, disk image (local path or
http(s) URL), resources, network settings, and cloud-init identity.

If provisioning fails after the VM has been created, the half-built VM is
destroyed again so nothing is left behind.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := args[0]
		fmt.Printf("Provisioning VM from config: %s\n", configPath)

		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return err
		}

		ctx := context.Background()
		opts := vm.ProvisionOptions{
			ImageCacheDir: imageCacheDir,
			RefreshImage:  refreshImage,
			SnippetsDir:   snippetsDir,
		}
		if err := vm.Provision(ctx, cfg, opts); err != nil {
			return fmt.Errorf("failed to provision VM: %w", err)
		}

		fmt.Printf("✓ VM %d (%s) provisioned successfully!\n", cfg.VMID, cfg.Name)
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy <vmid>",
	Short: "Destroy a VM",
	Long: `Destroy a virtual machine by VMID.

This will:
- Stop the VM if running
- Destroy the VM and its owned disks (qm destroy --purge)
- Remove the harrow user-data snippet if one was installed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, err := parseVMID(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Destroying VM %d...\n", vmid)

		ctx := context.Background()
		if err := vm.Destroy(ctx, vmid); err != nil {
			return fmt.Errorf("failed to destroy VM: %w", err)
		}

		fmt.Printf("✓ VM %d destroyed\n", vmid)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <vmid>",
	Short: "Start a VM",
	Long:  `Start an existing virtual machine by VMID. Already-running VMs are left alone.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, err := parseVMID(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := vm.Start(ctx, vmid); err != nil {
			return fmt.Errorf("failed to start VM: %w", err)
		}

		fmt.Printf("✓ VM %d started\n", vmid)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <vmid>",
	Short: "Show a VM's state and configuration",
	Long: `Show a virtual machine's lifecycle state, its qm config, and the
provisioning configuration harrow stored in the VM description.

Output formats:
  -o table  Human-readable output (default)
  -o yaml   Full YAML report
  -o json   Full JSON report`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, err := parseVMID(args[0])
		if err != nil {
			return err
		}

		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		ctx := context.Background()
		report, err := vm.Status(ctx, vmid)
		if err != nil {
			return fmt.Errorf("failed to get VM status: %w", err)
		}

		formatter, err := output.NewFormatter(output.Options{
			Format: output.Format(outputFormat),
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatStatus(report)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List VMs on the node",
	Long: `List all virtual machines on the node.

Shows VMID, name, state, memory, disk size and process ID.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   YAML stream, one document per VM
  -o json   JSON array`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		ctx := context.Background()
		vms, err := vm.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list VMs: %w", err)
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatVMList(vms)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

// parseVMID parses a VMID argument, enforcing the reserved range.
func parseVMID(arg string) (int, error) {
	vmid, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid VMID %q: must be a number", arg)
	}
	if vmid < 100 {
		return 0, fmt.Errorf("invalid VMID %d: Proxmox reserves VMIDs below 100", vmid)
	}
	return vmid, nil
}
