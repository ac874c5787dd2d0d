package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/harrow/internal/cloudinit"
	"github.com/jbweber/harrow/internal/config"
)

var seedCmd = &cobra.Command{
	Use:   "seed <config.yaml>",
	Short: "Generate a cloud-init NoCloud seed ISO",
	Long: `Generate a cloud-init NoCloud seed ISO from a VM configuration file.

The ISO contains user-data, meta-data and network-config with the same
settings the provisioned VM would receive. It can be attached to the same
image on hypervisors without a cloud-init drive, or inspected to see what
cloud-init will apply.

Example:
  harrow seed web-01.yaml -o web-01-seed.iso`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(args[0])
		if err != nil {
			return err
		}

		data, err := cloudinit.GenerateSeedISO(cfg)
		if err != nil {
			return fmt.Errorf("failed to generate seed ISO: %w", err)
		}

		if err := os.WriteFile(seedOutput, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", seedOutput, err)
		}

		fmt.Printf("✓ Seed ISO written to %s (%d bytes)\n", seedOutput, len(data))
		return nil
	},
}
