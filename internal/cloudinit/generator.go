// Package cloudinit generates the cloud-init configuration a provisioned
// VM boots with.
//
// On Proxmox the hypervisor builds the cloud-init drive itself; this
// package produces the inputs: the --ipconfig0 option string, the
// authorized-keys file --sshkeys reads, and a custom cloud-config
// user-data document for --cicustom. It can also build a standalone
// NoCloud seed ISO (see iso.go) for non-Proxmox boots.
//
// See https://cloudinit.readthedocs.io/ and
// https://pve.proxmox.com/wiki/Cloud-Init_Support
package cloudinit

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/harrow/internal/config"
)

// UserData represents the cloud-config user-data structure.
// This is marshaled to YAML and prefixed with the "#cloud-config" header.
//
// See https://cloudinit.readthedocs.io/en/latest/explanation/format.html#cloud-config-data
type UserData struct {
	Hostname          string    `yaml:"hostname"`
	FQDN              string    `yaml:"fqdn,omitempty"`
	User              string    `yaml:"user,omitempty"`
	SSHAuthorizedKeys []string  `yaml:"ssh_authorized_keys,omitempty"`
	Chpasswd          *Chpasswd `yaml:"chpasswd,omitempty"`
	SSHPasswordAuth   bool      `yaml:"ssh_pwauth"`
	PackageUpdate     bool      `yaml:"package_update"`
	Packages          []string  `yaml:"packages,omitempty"`
	RunCmd            []string  `yaml:"runcmd,omitempty"`
}

// Chpasswd configures user password settings.
type Chpasswd struct {
	Expire bool   `yaml:"expire"` // Whether to expire passwords on first login
	List   string `yaml:"list"`   // Format: "username:hash"
}

// MetaData represents the cloud-init meta-data structure used by the
// NoCloud seed ISO.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// IPConfigString builds the qm --ipconfig0 option value.
//
// Formats: "ip=dhcp" or "ip=<cidr>[,gw=<ip>]".
func IPConfigString(ipcfg config.IPConfig) string {
	if ipcfg.DHCP {
		return "ip=dhcp"
	}
	v := fmt.Sprintf("ip=%s", ipcfg.Address)
	if ipcfg.Gateway != "" {
		v += fmt.Sprintf(",gw=%s", ipcfg.Gateway)
	}
	return v
}

// WriteSSHKeysFile writes the authorized keys to a temp file for
// qm set --sshkeys, which reads keys from a file path. The caller must
// remove the returned file when the qm call has finished.
func WriteSSHKeysFile(keys []string) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("no SSH keys to write")
	}

	f, err := os.CreateTemp("", "harrow-sshkeys-*")
	if err != nil {
		return "", fmt.Errorf("failed to create sshkeys temp file: %w", err)
	}

	content := strings.Join(keys, "\n") + "\n"
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write sshkeys file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to close sshkeys file: %w", err)
	}

	return f.Name(), nil
}

// GenerateUserData generates a cloud-config user-data document from the
// VM configuration, including the "#cloud-config" header.
//
// The guest agent package is always installed so qm agent commands work
// against provisioned VMs.
func GenerateUserData(cfg *config.VMConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("VM configuration cannot be nil")
	}

	userData := UserData{
		Hostname:        cfg.Name,
		SSHPasswordAuth: false,
		PackageUpdate:   true,
		Packages:        []string{"qemu-guest-agent"},
		RunCmd: []string{
			"systemctl enable --now qemu-guest-agent",
		},
	}

	if cfg.Network.SearchDomain != "" {
		userData.FQDN = fmt.Sprintf("%s.%s", cfg.Name, cfg.Network.SearchDomain)
	}

	if cfg.CloudInit != nil {
		userData.User = cfg.CloudInit.User

		if len(cfg.CloudInit.SSHKeys) > 0 {
			userData.SSHAuthorizedKeys = cfg.CloudInit.SSHKeys
		}

		if cfg.CloudInit.PasswordHash != "" {
			user := cfg.CloudInit.User
			if user == "" {
				user = "root"
			}
			userData.Chpasswd = &Chpasswd{
				Expire: false,
				List:   fmt.Sprintf("%s:%s", user, cfg.CloudInit.PasswordHash),
			}
			userData.SSHPasswordAuth = true
		}
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	// The #cloud-config header is required by the cloud-init spec
	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData generates the meta-data document for the NoCloud seed
// ISO. Cloud-init uses instance-id to detect first boot; deriving it from
// the VMID and name means recreating the VM re-runs cloud-init.
func GenerateMetaData(cfg *config.VMConfig, instanceID string) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("VM configuration cannot be nil")
	}

	metaData := MetaData{
		InstanceID:    instanceID,
		LocalHostname: cfg.Name,
	}

	yamlBytes, err := yaml.Marshal(&metaData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}

	return string(yamlBytes), nil
}

// NetworkConfig represents the netplan v2 network configuration used by
// the NoCloud seed ISO. Proxmox-provisioned VMs get networking via
// ipconfig0 instead.
type NetworkConfig struct {
	Version   int                       `yaml:"version"`
	Ethernets map[string]EthernetConfig `yaml:"ethernets"`
}

// EthernetConfig represents a single ethernet interface configuration.
type EthernetConfig struct {
	DHCP4       bool          `yaml:"dhcp4,omitempty"`
	Addresses   []string      `yaml:"addresses,omitempty"`
	Routes      []RouteConfig `yaml:"routes,omitempty"`
	Nameservers *Nameservers  `yaml:"nameservers,omitempty"`
}

// RouteConfig represents a static route.
type RouteConfig struct {
	To  string `yaml:"to"`
	Via string `yaml:"via"`
}

// Nameservers represents DNS server configuration.
type Nameservers struct {
	Addresses []string `yaml:"addresses,omitempty"`
	Search    []string `yaml:"search,omitempty"`
}

// GenerateNetworkConfig generates the network-config document for the
// NoCloud seed ISO from the VM's network configuration.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/network-config-format-v2.html
func GenerateNetworkConfig(cfg *config.VMConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("VM configuration cannot be nil")
	}

	eth := EthernetConfig{}
	if cfg.Network.IPConfig.DHCP {
		eth.DHCP4 = true
	} else {
		eth.Addresses = []string{cfg.Network.IPConfig.Address}
		if cfg.Network.IPConfig.Gateway != "" {
			eth.Routes = []RouteConfig{{To: "0.0.0.0/0", Via: cfg.Network.IPConfig.Gateway}}
		}
	}

	if len(cfg.Network.DNSServers) > 0 || cfg.Network.SearchDomain != "" {
		ns := &Nameservers{Addresses: cfg.Network.DNSServers}
		if cfg.Network.SearchDomain != "" {
			ns.Search = []string{cfg.Network.SearchDomain}
		}
		eth.Nameservers = ns
	}

	networkConfig := NetworkConfig{
		Version:   2,
		Ethernets: map[string]EthernetConfig{"eth0": eth},
	}

	yamlBytes, err := yaml.Marshal(&networkConfig)
	if err != nil {
		return "", fmt.Errorf("failed to marshal network-config to YAML: %w", err)
	}

	return string(yamlBytes), nil
}
