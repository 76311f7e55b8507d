package capture

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"feedbackpipe/internal/logging"
)

// RemovalWatcher listens for udev "remove" events on the capture device nodes
// held by a live stream and reports them through onRemove.
type RemovalWatcher struct {
	logger   *slog.Logger
	onRemove func(node string)
	nodes    map[string]struct{}

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	fired   bool
}

// NewRemovalWatcher returns nil when there is nothing to watch.
func NewRemovalWatcher(nodes []string, onRemove func(node string), logger *slog.Logger) *RemovalWatcher {
	set := make(map[string]struct{}, len(nodes))
	for _, node := range nodes {
		if node = strings.TrimSpace(node); node != "" {
			set[node] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return &RemovalWatcher{
		logger:   logging.NewComponentLogger(logger, "hotplug"),
		onRemove: onRemove,
		nodes:    set,
	}
}

// Start connects to the udev netlink socket. Connection failures are logged
// and not returned: recording continues without unplug detection.
func (w *RemovalWatcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(w.logger, "netlink connect failed; device removal will not be detected", "hotplug_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the process may open netlink sockets"),
			logging.String(logging.FieldImpact, "an unplugged device is noticed only when capture output stops"),
		)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true
	go w.loop(ctx, conn, w.quit)
	return nil
}

// Stop closes the netlink socket. It is safe to call more than once.
func (w *RemovalWatcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.quit)
	w.quit = nil
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false
}

// Running reports whether the watcher is connected.
func (w *RemovalWatcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *RemovalWatcher) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, removalMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(uevent)
		case err := <-errs:
			w.logger.Debug("netlink monitor error", logging.Error(err))
		}
	}
}

// removalMatcher matches SUBSYSTEM=video4linux|sound, ACTION=remove.
func removalMatcher() netlink.Matcher {
	action := "remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux|sound",
		},
	})
	return rules
}

func (w *RemovalWatcher) handleEvent(uevent netlink.UEvent) {
	node := deviceNodeFromEvent(uevent)
	if node == "" {
		return
	}
	if _, ok := w.nodes[node]; !ok {
		return
	}
	w.mu.Lock()
	if w.fired {
		w.mu.Unlock()
		return
	}
	w.fired = true
	w.mu.Unlock()

	w.logger.Warn("capture device removed",
		logging.String(logging.FieldEventType, "capture_device_removed"),
		logging.String("device", node),
		logging.String(logging.FieldErrorHint, "reconnect the device and restart the feedback session"),
		logging.String(logging.FieldImpact, "the recording fails"),
	)
	if w.onRemove != nil {
		w.onRemove(node)
	}
}

func deviceNodeFromEvent(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/dev/") {
			devname = "/dev/" + devname
		}
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
