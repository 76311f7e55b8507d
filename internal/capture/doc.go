// Package capture defines the capture device contract the recording session
// drives, the device-error taxonomy, and the Linux implementation backed by
// an ffmpeg child process reading v4l2 and ALSA devices.
//
// A Stream emits opaque media chunks at a fixed timeslice until RequestStop is
// called; the final chunk is delivered before Chunks is closed, and Done fires
// after that. Release is idempotent and always safe to call.
//
// Hot-unplug of a capture device is detected through udev netlink events and
// surfaces as a DeviceError on the stream.
package capture
