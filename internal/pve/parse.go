package pve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jbweber/harrow/internal/naming"
)

// importedDiskPattern matches the unused-disk line qm importdisk prints on
// success. The volume reference may or may not be quoted depending on the
// PVE release:
//
//	Successfully imported disk as 'unused0:local-lvm:vm-100-disk-0'
//	unused0: successfully imported disk 'local-lvm:vm-100-disk-0'
var importedDiskPattern = regexp.MustCompile(`unused\d+:\s*(?:successfully imported disk\s*)?'?([\w.-]+:[^'\s]+)'?`)

// parseImportedDisk extracts the imported volume reference from qm
// importdisk output. When the output reports multiple unused disks the
// last one wins; that is the disk this import produced.
func parseImportedDisk(output string) (naming.VolumeRef, error) {
	matches := importedDiskPattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return naming.VolumeRef{}, fmt.Errorf("no unused disk reported")
	}
	ref := matches[len(matches)-1][1]
	return naming.ParseVolumeRef(ref)
}

// parseConfig parses qm config output into a key/value map. Lines are
// "key: value"; anything else (progress noise, blank lines) is skipped.
func parseConfig(output string) map[string]string {
	cfg := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || strings.Contains(key, " ") {
			continue
		}
		cfg[key] = strings.TrimSpace(value)
	}
	return cfg
}

// firstFreeSlot probes sequential slot indices on a bus against the config
// key set and returns the first one not present.
func firstFreeSlot(cfg map[string]string, bus naming.DiskBus) (string, error) {
	max, err := bus.MaxSlot()
	if err != nil {
		return "", err
	}
	for i := 0; i <= max; i++ {
		slot := naming.SlotName(bus, i)
		if _, occupied := cfg[slot]; !occupied {
			return slot, nil
		}
	}
	return "", fmt.Errorf("no free %s slot (all %d slots occupied)", bus, max+1)
}

// parseStatus extracts the state from qm status output ("status: running").
func parseStatus(output string) VMState {
	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(key) != "status" {
			continue
		}
		switch state := VMState(strings.TrimSpace(value)); state {
		case StateRunning, StateStopped, StatePaused:
			return state
		default:
			return StateUnknown
		}
	}
	return StateUnknown
}

// parseList parses the qm list table:
//
//	  VMID NAME                 STATUS     MEM(MB)    BOOTDISK(GB) PID
//	   100 web-01               running    2048              20.00 12345
func parseList(output string) ([]VMSummary, error) {
	var vms []VMSummary
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		vmid, err := strconv.Atoi(fields[0])
		if err != nil {
			// Header row or noise
			continue
		}

		vm := VMSummary{
			VMID:  vmid,
			Name:  fields[1],
			State: VMState(fields[2]),
		}
		if mem, err := strconv.Atoi(fields[3]); err == nil {
			vm.MemoryMB = mem
		}
		if disk, err := strconv.ParseFloat(fields[4], 64); err == nil {
			vm.DiskGB = disk
		}
		if len(fields) >= 6 {
			if pid, err := strconv.Atoi(fields[5]); err == nil {
				vm.PID = pid
			}
		}
		vms = append(vms, vm)
	}
	return vms, nil
}

// storageActive reports whether the pvesm status table lists the storage
// as active:
//
//	Name             Type     Status           Total        Used   Available        %
//	local             dir     active       98497780    12941772    80507124   13.14%
func storageActive(output string, storage string) bool {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if fields[0] == storage {
			return fields[2] == "active"
		}
	}
	return false
}
