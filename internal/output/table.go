package output

import (
	"bytes"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/jbweber/harrow/internal/pve"
	"github.com/jbweber/harrow/internal/vm"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatVMList formats a list of VM summaries as a table.
func (f *TableFormatter) FormatVMList(vms []pve.VMSummary) (string, error) {
	if len(vms) == 0 {
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	// Write header unless NoHeaders is set
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "VMID\tNAME\tSTATE\tMEMORY\tDISK\tPID")
	}

	// Write each VM as a row
	for _, v := range vms {
		memory := fmt.Sprintf("%d MiB", v.MemoryMB)

		disk := "-"
		if v.DiskGB > 0 {
			disk = fmt.Sprintf("%.2f GiB", v.DiskGB)
		}

		pid := "-"
		if v.PID > 0 {
			pid = fmt.Sprintf("%d", v.PID)
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			v.VMID, v.Name, v.State, memory, disk, pid)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatStatus formats a status report as aligned key/value lines, with the
// raw qm config below.
func (f *TableFormatter) FormatStatus(report *vm.StatusReport) (string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "VMID:\t%d\n", report.VMID)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", report.Name)
	_, _ = fmt.Fprintf(w, "State:\t%s\n", report.State)
	if report.Provisioned != nil {
		_, _ = fmt.Fprintf(w, "Image:\t%s\n", report.Provisioned.Image)
		_, _ = fmt.Fprintf(w, "Storage:\t%s\n", report.Provisioned.Storage)
	}
	_ = w.Flush()

	if len(report.Config) > 0 {
		buf.WriteString("\nConfig:\n")

		keys := make([]string, 0, len(report.Config))
		for k := range report.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		cw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		for _, k := range keys {
			if k == "description" {
				// The stored config block makes this too noisy for a table
				continue
			}
			_, _ = fmt.Fprintf(cw, "  %s:\t%s\n", k, report.Config[k])
		}
		_ = cw.Flush()
	}

	return buf.String(), nil
}
