package pve

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jbweber/harrow/internal/naming"
)

// fakeRunner records executed commands and replays canned responses.
type fakeRunner struct {
	// responses maps a command prefix ("qm status 100") to output/error.
	responses map[string]fakeResponse

	// calls records every executed command line.
	calls []string
}

type fakeResponse struct {
	output string
	err    error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: make(map[string]fakeResponse)}
}

func (f *fakeRunner) respond(prefix, output string, err error) {
	f.responses[prefix] = fakeResponse{output: output, err: err}
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	cmdline := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, cmdline)

	for prefix, resp := range f.responses {
		if strings.HasPrefix(cmdline, prefix) {
			return resp.output, resp.err
		}
	}
	return "", nil
}

func (f *fakeRunner) lastCall() string {
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func TestVMExists(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		err     error
		want    bool
		wantErr bool
	}{
		{
			name:   "existing VM",
			output: "status: stopped\n",
			want:   true,
		},
		{
			name:   "missing VM",
			output: "Configuration file 'nodes/pve/qemu-server/100.conf' does not exist\n",
			err:    fmt.Errorf("exit status 2"),
			want:   false,
		},
		{
			name:    "node error",
			output:  "connection refused\n",
			err:     fmt.Errorf("exit status 255"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.respond("qm status 100", tt.output, tt.err)
			client := newClientWithRunner(runner)

			got, err := client.VMExists(context.Background(), 100)
			if (err != nil) != tt.wantErr {
				t.Errorf("VMExists() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("VMExists() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCreate_BuildsSortedOptionArgs(t *testing.T) {
	runner := newFakeRunner()
	client := newClientWithRunner(runner)

	err := client.Create(context.Background(), 100, map[string]string{
		"name":   "web-01",
		"memory": "2048",
		"cores":  "2",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	want := "qm create 100 --cores 2 --memory 2048 --name web-01"
	if got := runner.lastCall(); got != want {
		t.Errorf("Create() ran %q, want %q", got, want)
	}
}

func TestSet_NoOptionsIsNoop(t *testing.T) {
	runner := newFakeRunner()
	client := newClientWithRunner(runner)

	if err := client.Set(context.Background(), 100, nil); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("Set() with no options executed %v", runner.calls)
	}
}

func TestImportDisk(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("qm importdisk 100",
		"importing disk...\nSuccessfully imported disk as 'unused0:local-lvm:vm-100-disk-0'\n", nil)
	client := newClientWithRunner(runner)

	ref, err := client.ImportDisk(context.Background(), 100, "/images/fedora.qcow2", "local-lvm", "qcow2")
	if err != nil {
		t.Fatalf("ImportDisk() error: %v", err)
	}

	want := naming.VolumeRef{Storage: "local-lvm", VolID: "vm-100-disk-0"}
	if ref != want {
		t.Errorf("ImportDisk() = %+v, want %+v", ref, want)
	}

	wantCmd := "qm importdisk 100 /images/fedora.qcow2 local-lvm --format qcow2"
	if got := runner.lastCall(); got != wantCmd {
		t.Errorf("ImportDisk() ran %q, want %q", got, wantCmd)
	}
}

func TestImportDisk_NoVolumeInOutput(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("qm importdisk 100", "transferred 5.0 GiB of 5.0 GiB (100.00%)\n", nil)
	client := newClientWithRunner(runner)

	_, err := client.ImportDisk(context.Background(), 100, "/images/fedora.qcow2", "local-lvm", "")
	if err == nil {
		t.Fatal("ImportDisk() expected error when output has no volume reference")
	}
}

func TestFirstFreeSlot_ProbesConfig(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("qm config 100",
		"scsi0: local-lvm:vm-100-disk-0,size=20G\nide2: local-lvm:vm-100-cloudinit,media=cdrom\n", nil)
	client := newClientWithRunner(runner)

	slot, err := client.FirstFreeSlot(context.Background(), 100, naming.BusSCSI)
	if err != nil {
		t.Fatalf("FirstFreeSlot() error: %v", err)
	}
	if slot != "scsi1" {
		t.Errorf("FirstFreeSlot() = %q, want scsi1", slot)
	}
}

func TestResize(t *testing.T) {
	runner := newFakeRunner()
	client := newClientWithRunner(runner)

	if err := client.Resize(context.Background(), 100, "scsi0", 20); err != nil {
		t.Fatalf("Resize() error: %v", err)
	}

	want := "qm resize 100 scsi0 +20G"
	if got := runner.lastCall(); got != want {
		t.Errorf("Resize() ran %q, want %q", got, want)
	}
}

func TestResize_RejectsNonPositive(t *testing.T) {
	client := newClientWithRunner(newFakeRunner())

	if err := client.Resize(context.Background(), 100, "scsi0", 0); err == nil {
		t.Error("Resize(0) expected error")
	}
	if err := client.Resize(context.Background(), 100, "scsi0", -5); err == nil {
		t.Error("Resize(-5) expected error")
	}
}

func TestStop_AlreadyStoppedIsNotAnError(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("qm stop 100", "VM 100 not running\n", fmt.Errorf("exit status 2"))
	client := newClientWithRunner(runner)

	if err := client.Stop(context.Background(), 100); err != nil {
		t.Errorf("Stop() on stopped VM returned error: %v", err)
	}
}

func TestDestroy(t *testing.T) {
	runner := newFakeRunner()
	client := newClientWithRunner(runner)

	if err := client.Destroy(context.Background(), 100); err != nil {
		t.Fatalf("Destroy() error: %v", err)
	}

	want := "qm destroy 100 --purge --destroy-unreferenced-disks"
	if got := runner.lastCall(); got != want {
		t.Errorf("Destroy() ran %q, want %q", got, want)
	}
}

func TestStorageExists(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("pvesm status",
		"Name             Type     Status           Total        Used   Available        %\n"+
			"local-lvm     lvmthin     active      832888832    41644441   791244390    5.00%\n", nil)
	client := newClientWithRunner(runner)

	exists, err := client.StorageExists(context.Background(), "local-lvm")
	if err != nil {
		t.Fatalf("StorageExists() error: %v", err)
	}
	if !exists {
		t.Error("StorageExists(local-lvm) = false, want true")
	}

	exists, err = client.StorageExists(context.Background(), "ceph-pool")
	if err != nil {
		t.Fatalf("StorageExists() error: %v", err)
	}
	if exists {
		t.Error("StorageExists(ceph-pool) = true, want false")
	}
}

func TestStoragePath(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("pvesm path", "/var/lib/vz/images/100/vm-100-disk-0.raw\n", nil)
	client := newClientWithRunner(runner)

	path, err := client.StoragePath(context.Background(), naming.VolumeRef{Storage: "local", VolID: "100/vm-100-disk-0.raw"})
	if err != nil {
		t.Fatalf("StoragePath() error: %v", err)
	}
	if path != "/var/lib/vz/images/100/vm-100-disk-0.raw" {
		t.Errorf("StoragePath() = %q", path)
	}
}
