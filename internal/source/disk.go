package source

import (
	"bytes"
	"context"
	"errors"
	"strings"
)

// healthyMarkers are the smartctl -H verdicts that mean the drive passed its
// self-assessment: ATA drives print "PASSED", SCSI drives "SMART Health Status: OK".
var healthyMarkers = [][]byte{
	[]byte("PASSED"),
	[]byte("SMART Health Status: OK"),
}

// DiskHealth reports the SMART overall-health verdict of one drive as "OK"
// or "FAIL".
type DiskHealth struct {
	runner   Runner
	smartctl string
	device   string
}

// NewDiskHealth returns a source for device, either a name under /dev
// ("sda") or an absolute path.
func NewDiskHealth(runner Runner, smartctl, device string) *DiskHealth {
	if smartctl == "" {
		smartctl = "smartctl"
	}
	return &DiskHealth{runner: runner, smartctl: smartctl, device: device}
}

func (d *DiskHealth) Name() string     { return "disk_" + strings.TrimPrefix(d.device, "/dev/") }
func (d *DiskHealth) Sentinel() string { return SentinelDisk }

func (d *DiskHealth) path() string {
	if strings.HasPrefix(d.device, "/") {
		return d.device
	}
	return "/dev/" + d.device
}

// Acquire runs smartctl -H. smartctl sets exit status bits for failing
// drives, so a non-zero exit with a readable report is still a verdict.
func (d *DiskHealth) Acquire(ctx context.Context) Field {
	out, err := d.runner.Run(ctx, d.smartctl, "-H", d.path())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Unavailable(d, ctxErr)
	}
	if len(bytes.TrimSpace(out)) == 0 {
		if err == nil {
			err = errors.New("smartctl produced no output")
		}
		return Unavailable(d, err)
	}
	if diskHealthy(out) {
		return okField(d.Name(), true, "OK")
	}
	f := okField(d.Name(), false, "FAIL")
	f.Err = err
	return f
}

func diskHealthy(out []byte) bool {
	for _, m := range healthyMarkers {
		if bytes.Contains(out, m) {
			return true
		}
	}
	return false
}
