package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/harrow/internal/pve"
	"github.com/jbweber/harrow/internal/vm"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

// FormatStatus formats a status report as YAML.
func (f *YAMLFormatter) FormatStatus(report *vm.StatusReport) (string, error) {
	data, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal status to YAML: %w", err)
	}

	return string(data), nil
}

// FormatVMList formats a list of VM summaries as a YAML stream
// (one document per VM, separated by ---).
func (f *YAMLFormatter) FormatVMList(vms []pve.VMSummary) (string, error) {
	if len(vms) == 0 {
		return "", nil
	}

	var buf bytes.Buffer

	for i, v := range vms {
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal VM %d to YAML: %w", v.VMID, err)
		}

		// Document separator between VMs (but not before the first one)
		if i > 0 {
			buf.WriteString("---\n")
		}

		buf.Write(data)
	}

	return buf.String(), nil
}
