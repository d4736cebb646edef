//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// epollTimeoutMS is how often the reader wakes up to check for shutdown.
const epollTimeoutMS = 100

// runInputDevices reads the encoder and panel buttons from evdev devices and
// forwards translated events until ctx is canceled or a device fails.
//
// One goroutine multiplexes every device through epoll; the kernel wakes it
// only when a device has data.
func runInputDevices(ctx context.Context, paths []string, events chan<- Event, logger *slog.Logger) error {
	if len(paths) == 0 {
		return nil
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int32]*os.File, len(paths))
	defer func() {
		for _, f := range fdToFile {
			_ = f.Close()
		}
	}()

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open input device: %w", err)
		}
		fd := int32(f.Fd())
		fdToFile[fd] = f

		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: fd}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
			return fmt.Errorf("epoll_ctl_add %s: %w", p, err)
		}
		logger.Info("input device opened", "device", p)
	}

	ready := make([]unix.EpollEvent, 16)
	buf := make([]byte, inputEventSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, ready, epollTimeoutMS)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			f := fdToFile[ready[i].Fd]
			if f == nil {
				continue
			}
			if ready[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("input device error/hangup: %s", f.Name())
			}
			if _, err := io.ReadFull(f, buf); err != nil {
				return fmt.Errorf("read from %s: %w", f.Name(), err)
			}

			raw, err := decodeInputEvent(buf)
			if err != nil {
				continue
			}
			ev, ok := translateInputEvent(raw)
			if !ok {
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
