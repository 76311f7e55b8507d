package capture

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/sys/unix"
)

var alsaHardware = regexp.MustCompile(`^(?:plug)?hw:(?:CARD=)?(\d+)(?:,(?:DEV=)?(\d+))?$`)

// DeviceNode resolves a configured device to its device node. Absolute paths
// are returned as-is and ALSA hardware names such as "hw:1,0" map to the
// capture PCM node. Names without a node ("default", "pulse") return "".
func DeviceNode(format, device string) string {
	device = strings.TrimSpace(device)
	if strings.HasPrefix(device, "/") {
		return device
	}
	if format == "alsa" {
		if m := alsaHardware.FindStringSubmatch(device); m != nil {
			dev := m[2]
			if dev == "" {
				dev = "0"
			}
			return fmt.Sprintf("/dev/snd/pcmC%sD%sc", m[1], dev)
		}
	}
	return ""
}

// CheckAccess verifies the device node exists and is readable and writable by
// this process. Empty nodes pass.
func CheckAccess(node string) error {
	if node == "" {
		return nil
	}
	if _, err := os.Stat(node); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &DeviceError{Kind: KindNotFound, Device: node, Err: err}
		}
		return &DeviceError{Kind: KindOther, Device: node, Err: err}
	}
	if err := unix.Access(node, unix.R_OK|unix.W_OK); err != nil {
		switch {
		case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
			return &DeviceError{Kind: KindPermissionDenied, Device: node, Detail: "add the user to the video or audio group", Err: err}
		case errors.Is(err, unix.EBUSY):
			return &DeviceError{Kind: KindBusy, Device: node, Err: err}
		default:
			return &DeviceError{Kind: KindOther, Device: node, Err: err}
		}
	}
	return nil
}
