//go:build linux

// Package watching implements the Autoscan/Inotify watcher: the subsystem
// that keeps the content database in sync with a mutating filesystem using
// kernel inotify events. This file is the thin kernel transport layer; see
// watch.go for the worker loop and dispatch logic that is the actual subject
// of this package.
package watching

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// watchMask is the fixed event set every directory watch is installed with.
// IN_IGNORED and IN_Q_OVERFLOW are not valid bits for inotify_add_watch's
// mask, but the kernel reports them on every watch unconditionally, so
// there's nothing to add here for them.
const watchMask = unix.IN_CLOSE_WRITE |
	unix.IN_CREATE |
	unix.IN_MOVED_FROM |
	unix.IN_MOVED_TO |
	unix.IN_DELETE |
	unix.IN_DELETE_SELF |
	unix.IN_MOVE_SELF |
	unix.IN_UNMOUNT

// rawEvent is a parsed kernel inotify_event, still path-less: Name is just
// the final path component (or empty for events targeting the watched
// directory itself), and the caller must join it against the watched
// directory's tracked path to get an absolute path.
type rawEvent struct {
	Wd     int32
	Mask   uint32
	Cookie uint32
	Name   string
}

func (e rawEvent) isDir() bool      { return e.Mask&unix.IN_ISDIR != 0 }
func (e rawEvent) is(bit uint32) bool { return e.Mask&bit != 0 }

// inotifyFD wraps a single inotify instance. It is not safe for concurrent
// use; the instance is owned exclusively by the worker goroutine.
type inotifyFD struct {
	fd  int
	buf [unix.SizeofInotifyEvent * 4096]byte
}

// newInotifyFD creates a new non-blocking inotify instance.
func newInotifyFD() (*inotifyFD, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}
	return &inotifyFD{fd: fd}, nil
}

// addWatch installs (or updates) a watch on path. The returned wd is
// negative only on error.
func (f *inotifyFD) addWatch(path string) (int32, error) {
	wd, err := unix.InotifyAddWatch(f.fd, path, watchMask)
	if err != nil {
		return -1, err
	}
	return int32(wd), nil
}

// rmWatch removes a watch. Errors are non-fatal to the caller: the most
// common case is EINVAL because the kernel already invalidated the wd (the
// watched directory was removed), which the caller should treat as already
// having achieved its goal.
func (f *inotifyFD) rmWatch(wd int32) error {
	_, err := unix.InotifyRmWatch(f.fd, uint32(wd))
	return err
}

// close closes the underlying file descriptor, releasing every outstanding
// watch at once, rather than iterating and calling inotify_rm_watch on every
// watch descriptor individually.
func (f *inotifyFD) close() error {
	return unix.Close(f.fd)
}

// read blocks for up to timeout waiting for readable data, then drains and
// parses whatever is available. It returns a nil slice (no error) on a
// timeout with no data, so the worker loop can fall through to its next
// tick.
func (f *inotifyFD) read(timeout time.Duration) ([]rawEvent, error) {
	pollFds := []unix.PollFd{{Fd: int32(f.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pollFds, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	read, err := unix.Read(f.fd, f.buf[:])
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, fmt.Errorf("read: %w", err)
	}
	if read == 0 {
		return nil, nil
	}
	if read < unix.SizeofInotifyEvent {
		return nil, fmt.Errorf("short read from inotify fd: %d bytes", read)
	}

	var events []rawEvent
	var offset uint32
	for offset <= uint32(read)-unix.SizeofInotifyEvent {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&f.buf[offset]))
		nameLen := uint32(raw.Len)

		var name string
		if nameLen > 0 {
			nameBytes := f.buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
			if idx := indexNUL(nameBytes); idx >= 0 {
				nameBytes = nameBytes[:idx]
			}
			name = string(nameBytes)
		}

		events = append(events, rawEvent{
			Wd:     raw.Wd,
			Mask:   raw.Mask,
			Cookie: raw.Cookie,
			Name:   name,
		})

		offset += unix.SizeofInotifyEvent + nameLen
	}

	return events, nil
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
