//go:build linux

package devices

import (
	"context"
	"errors"
	"log/slog"
	"syscall"
)

const netlinkKobjectUEvent = 15

// UEventWatcher listens on the kernel uevent netlink socket and signals
// whenever a video node is added or removed.
type UEventWatcher struct {
	fd     int
	wake   chan struct{}
	logger *slog.Logger
}

// NewUEventWatcher binds to the kernel broadcast group.
func NewUEventWatcher(logger *slog.Logger) (*UEventWatcher, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_DGRAM|syscall.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}
	addr := &syscall.SockaddrNetlink{Family: syscall.AF_NETLINK, Groups: 1}
	if err := syscall.Bind(fd, addr); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return &UEventWatcher{
		fd:     fd,
		wake:   make(chan struct{}, 1),
		logger: logger,
	}, nil
}

// Wake returns the channel signalled on video node changes. Pass it to WithWake.
func (w *UEventWatcher) Wake() <-chan struct{} {
	return w.wake
}

// Run reads events until ctx is done. The socket is closed on return.
func (w *UEventWatcher) Run(ctx context.Context) error {
	defer syscall.Close(w.fd)

	tv := syscall.Timeval{Sec: 1}
	if err := syscall.SetsockoptTimeval(w.fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
		return err
	}

	buf := make([]byte, 8192)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, _, err := syscall.Recvfrom(w.fd, buf, 0)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) {
				continue
			}
			return err
		}

		ev, ok := parseUEvent(buf[:n])
		if !ok || !ev.IsVideoNode() {
			continue
		}
		if ev.Action != ActionAdd && ev.Action != ActionRemove {
			continue
		}

		w.logger.Info("Video node event", "action", ev.Action, "device", ev.DevName)
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}
