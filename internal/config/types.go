package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/harrow/internal/naming"
)

// VMConfig represents the complete provisioning configuration for one VM.
type VMConfig struct {
	VMID        int              `yaml:"vmid"`
	Name        string           `yaml:"name"`
	Image       string           `yaml:"image"`               // local path or http(s) URL to a disk image
	Storage     string           `yaml:"storage,omitempty"`   // Proxmox storage ID for the imported disk (default: "local-lvm")
	Bus         naming.DiskBus   `yaml:"bus,omitempty"`       // disk bus: scsi, virtio, sata (default: scsi)
	ResizeGB    int              `yaml:"resize_gb,omitempty"` // grow the boot disk by this many GiB after import
	MemoryMB    int              `yaml:"memory_mb"`
	Cores       int              `yaml:"cores"`
	CPUType     string           `yaml:"cpu_type,omitempty"` // qm --cpu value (default: "host")
	Network     NetworkConfig    `yaml:"network"`
	CloudInit   *CloudInitConfig `yaml:"cloud_init,omitempty"`
	Tags        []string         `yaml:"tags,omitempty"`
	Start       bool             `yaml:"start,omitempty"` // start the VM after provisioning
	Description string           `yaml:"description,omitempty"`
}

// NetworkConfig defines the VM's net0 interface and cloud-init networking.
type NetworkConfig struct {
	Bridge       string   `yaml:"bridge"`          // e.g. vmbr0
	VLAN         int      `yaml:"vlan,omitempty"`  // VLAN tag, 0 = untagged
	Model        string   `yaml:"model,omitempty"` // NIC model (default: virtio)
	IPConfig     IPConfig `yaml:"ipconfig"`
	DNSServers   []string `yaml:"dns_servers,omitempty"`
	SearchDomain string   `yaml:"search_domain,omitempty"`
}

// IPConfig defines the cloud-init ipconfig0 settings.
// Either DHCP is true, or Address/Gateway describe a static assignment.
type IPConfig struct {
	DHCP    bool   `yaml:"dhcp,omitempty"`
	Address string `yaml:"address,omitempty"` // IP with CIDR, e.g. "10.20.30.40/24"
	Gateway string `yaml:"gateway,omitempty"`
}

// CloudInitConfig contains cloud-init identity configuration.
// These map to the qm --ciuser/--cipassword/--sshkeys/--cicustom options.
type CloudInitConfig struct {
	User         string   `yaml:"user,omitempty"`
	PasswordHash string   `yaml:"password_hash,omitempty"` // crypt hash, passed to --cipassword
	SSHKeys      []string `yaml:"ssh_keys,omitempty"`
	UserData     string   `yaml:"user_data,omitempty"` // path to a custom user-data file (wired via --cicustom)
}

// vmNamePattern matches Proxmox VM name requirements (DNS label style).
var vmNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// imageExtensions are the disk image formats qm importdisk understands.
var imageExtensions = map[string]bool{
	".qcow2": true,
	".img":   true,
	".raw":   true,
	".vmdk":  true,
	".vdi":   true,
}

// Normalize sanitizes user input to consistent formats and applies
// defaults. This is called automatically by LoadFromFile before validation.
func (c *VMConfig) Normalize() {
	c.Name = strings.ToLower(strings.TrimSpace(c.Name))
	c.Image = strings.TrimSpace(c.Image)

	if c.Storage == "" {
		c.Storage = "local-lvm"
	}
	if c.Bus == "" {
		c.Bus = naming.BusSCSI
	}
	if c.CPUType == "" {
		c.CPUType = "host"
	}
	if c.Network.Model == "" {
		c.Network.Model = "virtio"
	}
}

// Validate checks the configuration for errors.
// Does not validate node resources (storages, bridges) - only config
// structure. Node-level checks happen during provisioning.
func (c *VMConfig) Validate() error {
	// Proxmox reserves VMIDs below 100
	if c.VMID < 100 || c.VMID > 999999999 {
		return fmt.Errorf("vmid must be in range 100..999999999, got %d", c.VMID)
	}

	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !vmNamePattern.MatchString(c.Name) {
		return fmt.Errorf("name must be a lowercase DNS-style label (alphanumeric and hyphens), got %q", c.Name)
	}

	if c.Image == "" {
		return fmt.Errorf("image is required (local path or http(s) URL)")
	}
	if err := validateImageRef(c.Image); err != nil {
		return fmt.Errorf("image: %w", err)
	}

	if c.MemoryMB < 16 {
		return fmt.Errorf("memory_mb must be >= 16, got %d", c.MemoryMB)
	}
	if c.Cores < 1 {
		return fmt.Errorf("cores must be >= 1, got %d", c.Cores)
	}
	if c.ResizeGB < 0 {
		return fmt.Errorf("resize_gb must be >= 0, got %d", c.ResizeGB)
	}

	if _, err := c.Bus.MaxSlot(); err != nil {
		return fmt.Errorf("bus: %w", err)
	}

	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}

	if c.CloudInit != nil {
		if err := c.CloudInit.Validate(); err != nil {
			return fmt.Errorf("cloud_init: %w", err)
		}
	}

	if _, err := naming.NormalizeTags(c.Tags); err != nil {
		return fmt.Errorf("tags: %w", err)
	}

	return nil
}

// validateImageRef checks that an image reference is either an http(s) URL
// or a local path with a recognized disk image extension.
func validateImageRef(ref string) error {
	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return fmt.Errorf("invalid URL %q: %w", ref, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported URL scheme %q (only http and https)", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("URL %q has no host", ref)
		}
		return nil
	}

	ext := strings.ToLower(filepath.Ext(ref))
	// qm importdisk handles compressed images on newer PVE releases; check
	// the inner extension for those (fedora.qcow2.xz -> .qcow2).
	if ext == ".xz" || ext == ".gz" || ext == ".zst" {
		ext = strings.ToLower(filepath.Ext(strings.TrimSuffix(ref, ext)))
	}
	if !imageExtensions[ext] {
		return fmt.Errorf("unrecognized image extension %q (expected qcow2, img, raw, vmdk, or vdi)", ext)
	}
	return nil
}

// Validate checks the network configuration.
func (n *NetworkConfig) Validate() error {
	if n.Bridge == "" {
		return fmt.Errorf("bridge is required")
	}
	if n.VLAN < 0 || n.VLAN > 4094 {
		return fmt.Errorf("vlan must be in range 0..4094, got %d", n.VLAN)
	}

	if err := n.IPConfig.Validate(); err != nil {
		return fmt.Errorf("ipconfig: %w", err)
	}

	for i, dns := range n.DNSServers {
		if net.ParseIP(dns) == nil {
			return fmt.Errorf("dns_servers[%d] is not a valid IP address: %q", i, dns)
		}
	}

	return nil
}

// Validate checks the ipconfig settings.
func (p *IPConfig) Validate() error {
	if p.DHCP {
		if p.Address != "" || p.Gateway != "" {
			return fmt.Errorf("dhcp and static address/gateway are mutually exclusive")
		}
		return nil
	}

	if p.Address == "" {
		return fmt.Errorf("either dhcp: true or a static address is required")
	}
	ip, ipnet, err := net.ParseCIDR(p.Address)
	if err != nil {
		return fmt.Errorf("invalid address %q (expected ip/prefix): %w", p.Address, err)
	}
	if ip == nil || ipnet == nil {
		return fmt.Errorf("invalid address %q", p.Address)
	}

	if p.Gateway != "" && net.ParseIP(p.Gateway) == nil {
		return fmt.Errorf("invalid gateway IP address %q", p.Gateway)
	}

	return nil
}

// Validate checks the cloud-init identity configuration.
func (c *CloudInitConfig) Validate() error {
	// Validate SSH keys using golang.org/x/crypto/ssh parser
	for i, key := range c.SSHKeys {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			return fmt.Errorf("ssh_keys[%d] is not a valid SSH public key: %w", i, err)
		}
	}

	// cipassword accepts plaintext too, but we refuse it so secrets never
	// land in the VM config in the clear.
	if c.PasswordHash != "" {
		if len(c.PasswordHash) < 10 || c.PasswordHash[0] != '$' {
			return fmt.Errorf("password_hash must be a crypt hash (should start with $)")
		}
	}

	if c.UserData != "" {
		info, err := os.Stat(c.UserData)
		if err != nil {
			return fmt.Errorf("user_data file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("user_data %q is a directory", c.UserData)
		}
	}

	return nil
}

// ImageIsURL reports whether the image reference is a remote URL that
// needs downloading before import.
func (c *VMConfig) ImageIsURL() bool {
	return strings.HasPrefix(c.Image, "http://") || strings.HasPrefix(c.Image, "https://")
}

// NormalizedTags returns the validated, deduplicated tag list.
func (c *VMConfig) NormalizedTags() []string {
	tags, err := naming.NormalizeTags(c.Tags)
	if err != nil {
		// Validate() rejects invalid tags before this is reachable.
		return nil
	}
	return tags
}

// Net0 returns the qm --net0 option value for the configured interface.
// Format: <model>,bridge=<bridge>[,tag=<vlan>]
func (c *VMConfig) Net0() string {
	v := fmt.Sprintf("%s,bridge=%s", c.Network.Model, c.Network.Bridge)
	if c.Network.VLAN > 0 {
		v += fmt.Sprintf(",tag=%d", c.Network.VLAN)
	}
	return v
}

// LoadFromFile loads a VM provisioning configuration from a YAML file.
func LoadFromFile(path string) (*VMConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config VMConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Normalize user input before validation
	config.Normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
