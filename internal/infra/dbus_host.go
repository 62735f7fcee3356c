package infra

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

const (
	notificationsName  = "org.freedesktop.Notifications"
	notificationsPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsIface = "org.freedesktop.Notifications"
	becomeMonitor      = "org.freedesktop.DBus.Monitoring.BecomeMonitor"
	accessDenied       = "org.freedesktop.DBus.Error.AccessDenied"
	busName            = "org.freedesktop.DBus"

	// Notify calls whose reply never arrives are forgotten after this long.
	pendingTTL = 30 * time.Second
)

// notifyCall is an observed org.freedesktop.Notifications.Notify request.
type notifyCall struct {
	sender     string
	serial     uint32
	appName    string
	replacesID uint32
	hints      map[string]dbus.Variant
}

// notifyReply is the server's answer to a Notify call carrying the assigned id.
type notifyReply struct {
	destination string
	replySerial uint32
	id          uint32
}

type pendingNotify struct {
	pkg  string
	seen time.Time
}

// DBusHost implements domain.NotificationHost for freedesktop notifications.
// It monitors the session bus for Notify calls and their replies, and
// withdraws notifications through CloseNotification.
type DBusHost struct {
	procs  domain.ProcessManager
	logger *zap.Logger

	// Replaced in tests.
	connect   func() (*dbus.Conn, error)
	pidOf     func(sender string) (uint32, error)
	closeByID func(id uint32) error
	now       func() time.Time

	mu      sync.Mutex
	control *dbus.Conn
	pending map[string]pendingNotify // sender/serial -> resolved package
	active  map[uint32]string        // notification id -> package
}

// NewDBusHost creates a host on the user's session bus.
func NewDBusHost(procs domain.ProcessManager, logger *zap.Logger) *DBusHost {
	h := &DBusHost{
		procs:   procs,
		logger:  logger,
		connect: func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() },
		now:     time.Now,
		pending: make(map[string]pendingNotify),
		active:  make(map[uint32]string),
	}
	h.pidOf = h.busPidOf
	h.closeByID = h.busClose
	return h
}

// Serve attaches callbacks until ctx is done or the bus connection drops.
func (h *DBusHost) Serve(ctx context.Context, callbacks domain.ListenerCallbacks) error {
	control, err := h.connect()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer control.Close()

	monitor, err := h.connect()
	if err != nil {
		return fmt.Errorf("failed to open monitor connection: %w", err)
	}
	defer monitor.Close()

	if err := monitor.BusObject().CallWithContext(ctx, becomeMonitor, 0, matchRules(), uint32(0)).Err; err != nil {
		return fmt.Errorf("failed to become bus monitor: %w", monitorError(err))
	}

	// A monitor connection may not send; all further traffic arrives here.
	msgs := make(chan *dbus.Message, 64)
	monitor.Eavesdrop(msgs)

	h.mu.Lock()
	h.control = control
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.control = nil
		h.mu.Unlock()
	}()

	callbacks.OnConnected(ctx)
	defer callbacks.OnDisconnected()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-monitor.Context().Done():
			return errors.New("session bus connection closed")
		case <-control.Context().Done():
			return errors.New("session bus control connection closed")
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("session bus monitor closed")
			}
			h.handle(ctx, msg, callbacks)
		}
	}
}

// matchRules narrows monitoring to notification traffic. A well-known sender
// name matches whichever connection owns it when the message is sent.
func matchRules() []string {
	return []string{
		fmt.Sprintf("type='method_call',interface='%s',member='Notify'", notificationsIface),
		fmt.Sprintf("type='method_return',sender='%s'", notificationsName),
		fmt.Sprintf("type='signal',interface='%s',member='NotificationClosed'", notificationsIface),
		fmt.Sprintf("type='signal',sender='%s',member='NameOwnerChanged',arg0='%s'", busName, notificationsName),
	}
}

// monitorError tags a refused BecomeMonitor call with domain.ErrPermissionDenied.
// Other failures (timeouts, a broken bus) pass through unchanged.
func monitorError(err error) error {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) && dbusErr.Name == accessDenied {
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, dbusErr.Error())
	}
	return err
}

// handle dispatches one monitored message.
func (h *DBusHost) handle(ctx context.Context, msg *dbus.Message, callbacks domain.ListenerCallbacks) {
	switch msg.Type {
	case dbus.TypeMethodCall:
		call, ok := parseNotifyCall(msg)
		if !ok {
			return
		}
		h.onNotifyCall(call)

	case dbus.TypeMethodReply:
		reply, ok := parseNotifyReply(msg)
		if !ok {
			return
		}
		if n, ok := h.onNotifyReply(reply); ok {
			callbacks.OnPosted(ctx, n)
		}

	case dbus.TypeSignal:
		if owner, ok := parseServerOwnerChanged(msg); ok {
			h.onServerChanged(owner)
			return
		}
		id, ok := parseNotificationClosed(msg)
		if !ok {
			return
		}
		if n, ok := h.onClosed(id); ok {
			callbacks.OnRemoved(ctx, n)
		}
	}
}

func (h *DBusHost) onNotifyCall(call notifyCall) {
	pkg := h.resolvePackage(call)
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()
	for k, p := range h.pending {
		if now.Sub(p.seen) > pendingTTL {
			delete(h.pending, k)
		}
	}
	h.pending[pendingKey(call.sender, call.serial)] = pendingNotify{pkg: pkg, seen: now}
}

func (h *DBusHost) onNotifyReply(reply notifyReply) (domain.Notification, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := pendingKey(reply.destination, reply.replySerial)
	p, ok := h.pending[key]
	if !ok {
		// Some other method return from the notification server.
		return domain.Notification{}, false
	}
	delete(h.pending, key)
	h.active[reply.id] = p.pkg

	return domain.Notification{PackageID: p.pkg, Key: formatKey(reply.id)}, true
}

func (h *DBusHost) onClosed(id uint32) (domain.Notification, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pkg, ok := h.active[id]
	if !ok {
		return domain.Notification{}, false
	}
	delete(h.active, id)
	return domain.Notification{PackageID: pkg, Key: formatKey(id)}, true
}

// onServerChanged forgets the previous server's notifications: ids are only
// meaningful to the server that assigned them.
func (h *DBusHost) onServerChanged(owner string) {
	h.mu.Lock()
	dropped := len(h.active)
	clear(h.active)
	clear(h.pending)
	h.mu.Unlock()

	h.logger.Info("notification server changed",
		zap.String("owner", owner),
		zap.Int("dropped", dropped))
}

// resolvePackage maps a Notify call to a package id: the desktop-entry hint,
// then the application name, then the sending process's executable name.
func (h *DBusHost) resolvePackage(call notifyCall) string {
	if v, ok := call.hints["desktop-entry"]; ok {
		if s, ok := v.Value().(string); ok && s != "" {
			return strings.TrimSuffix(s, desktopSuffix)
		}
	}
	if call.appName != "" {
		return call.appName
	}

	pid, err := h.pidOf(call.sender)
	if err != nil {
		h.logger.Debug("failed to resolve sender pid", zap.String("sender", call.sender), zap.Error(err))
		return ""
	}
	name, err := h.procs.NameOf(int(pid))
	if err != nil {
		h.logger.Debug("failed to resolve sender process", zap.Uint32("pid", pid), zap.Error(err))
		return ""
	}
	return name
}

// Cancel withdraws the notification with the given key.
func (h *DBusHost) Cancel(key string) error {
	id, err := parseKey(key)
	if err != nil {
		return err
	}
	if err := h.closeByID(id); err != nil {
		return fmt.Errorf("failed to close notification %d: %w", id, err)
	}

	h.mu.Lock()
	delete(h.active, id)
	h.mu.Unlock()
	return nil
}

// ActiveNotifications returns the notifications seen and not yet closed,
// ordered by id. The freedesktop API has no way to list notifications
// posted before monitoring started.
func (h *DBusHost) ActiveNotifications() ([]domain.Notification, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]uint32, 0, len(h.active))
	for id := range h.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]domain.Notification, len(ids))
	for i, id := range ids {
		out[i] = domain.Notification{PackageID: h.active[id], Key: formatKey(id)}
	}
	return out, nil
}

func (h *DBusHost) controlConn() (*dbus.Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.control == nil {
		return nil, errors.New("not connected to session bus")
	}
	return h.control, nil
}

func (h *DBusHost) busClose(id uint32) error {
	conn, err := h.controlConn()
	if err != nil {
		return err
	}
	return conn.Object(notificationsName, notificationsPath).
		Call(notificationsIface+".CloseNotification", 0, id).Err
}

func (h *DBusHost) busPidOf(sender string) (uint32, error) {
	conn, err := h.controlConn()
	if err != nil {
		return 0, err
	}
	var pid uint32
	err = conn.BusObject().Call("org.freedesktop.DBus.GetConnectionUnixProcessID", 0, sender).Store(&pid)
	return pid, err
}

func parseNotifyCall(msg *dbus.Message) (notifyCall, bool) {
	iface, _ := msg.Headers[dbus.FieldInterface].Value().(string)
	member, _ := msg.Headers[dbus.FieldMember].Value().(string)
	if iface != notificationsIface || member != "Notify" || len(msg.Body) < 7 {
		return notifyCall{}, false
	}

	sender, _ := msg.Headers[dbus.FieldSender].Value().(string)
	appName, _ := msg.Body[0].(string)
	replacesID, _ := msg.Body[1].(uint32)
	hints, _ := msg.Body[6].(map[string]dbus.Variant)

	return notifyCall{
		sender:     sender,
		serial:     msg.Serial(),
		appName:    appName,
		replacesID: replacesID,
		hints:      hints,
	}, true
}

func parseNotifyReply(msg *dbus.Message) (notifyReply, bool) {
	replySerial, ok := msg.Headers[dbus.FieldReplySerial].Value().(uint32)
	if !ok || len(msg.Body) != 1 {
		return notifyReply{}, false
	}
	id, ok := msg.Body[0].(uint32)
	if !ok {
		return notifyReply{}, false
	}
	dest, _ := msg.Headers[dbus.FieldDestination].Value().(string)
	return notifyReply{destination: dest, replySerial: replySerial, id: id}, true
}

func parseNotificationClosed(msg *dbus.Message) (uint32, bool) {
	iface, _ := msg.Headers[dbus.FieldInterface].Value().(string)
	member, _ := msg.Headers[dbus.FieldMember].Value().(string)
	if iface != notificationsIface || member != "NotificationClosed" || len(msg.Body) < 1 {
		return 0, false
	}
	id, ok := msg.Body[0].(uint32)
	return id, ok
}

// parseServerOwnerChanged returns the new owner of the notification server name.
func parseServerOwnerChanged(msg *dbus.Message) (string, bool) {
	member, _ := msg.Headers[dbus.FieldMember].Value().(string)
	if member != "NameOwnerChanged" || len(msg.Body) < 3 {
		return "", false
	}
	name, _ := msg.Body[0].(string)
	if name != notificationsName {
		return "", false
	}
	owner, _ := msg.Body[2].(string)
	return owner, true
}

func pendingKey(sender string, serial uint32) string {
	return sender + "/" + strconv.FormatUint(uint64(serial), 10)
}

func formatKey(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseKey(key string) (uint32, error) {
	id, err := strconv.ParseUint(key, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid notification key %q: %w", key, err)
	}
	return uint32(id), nil
}

// Ensure DBusHost implements domain.NotificationHost.
var _ domain.NotificationHost = (*DBusHost)(nil)
