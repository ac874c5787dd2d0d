package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/harrow/internal/pve"
	"github.com/jbweber/harrow/internal/vm"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

// FormatStatus formats a status report as JSON.
func (f *JSONFormatter) FormatStatus(report *vm.StatusReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

// FormatVMList formats a list of VM summaries as a JSON array.
func (f *JSONFormatter) FormatVMList(vms []pve.VMSummary) (string, error) {
	if len(vms) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(vms, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal VMs to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
