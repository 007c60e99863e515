//go:build windows

package window

import (
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	swMaximize    = 3
	swMinimize    = 6
	wmClose       = 0x0010
	maxTitleChars = 512
)

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows     = user32.NewProc("EnumWindows")
	procGetWindowTextW  = user32.NewProc("GetWindowTextW")
	procIsWindowVisible = user32.NewProc("IsWindowVisible")
	procShowWindow      = user32.NewProc("ShowWindow")
	procPostMessageW    = user32.NewProc("PostMessageW")
	procSetForeground   = user32.NewProc("SetForegroundWindow")
	procGetWindowPID    = user32.NewProc("GetWindowThreadProcessId")
)

type topWindow struct {
	hwnd  uintptr
	pid   int
	title string
}

// EnumWindows callbacks are a scarce resource, so one is shared and
// enumeration is serialized.
var (
	enumMu      sync.Mutex
	enumResults []topWindow
	enumProc    = windows.NewCallback(func(hwnd, _ uintptr) uintptr {
		visible, _, _ := procIsWindowVisible.Call(hwnd)
		if visible == 0 {
			return 1
		}
		var pid uint32
		procGetWindowPID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))

		buf := make([]uint16, maxTitleChars)
		n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
		enumResults = append(enumResults, topWindow{
			hwnd:  hwnd,
			pid:   int(pid),
			title: syscall.UTF16ToString(buf[:n]),
		})
		return 1
	})
)

func enumerate() ([]topWindow, error) {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumResults = enumResults[:0]
	r, _, err := procEnumWindows.Call(enumProc, 0)
	if r == 0 {
		return nil, err
	}
	return append([]topWindow(nil), enumResults...), nil
}

type user32Manager struct{}

// NewSystem returns the user32-backed manager
func NewSystem() Manager {
	return user32Manager{}
}

func (user32Manager) Minimize(pids ...int) error {
	wins, err := enumerate()
	if err != nil {
		return err
	}
	wanted := make(map[int]bool, len(pids))
	for _, pid := range pids {
		wanted[pid] = true
	}
	for _, w := range wins {
		if wanted[w.pid] {
			procShowWindow.Call(w.hwnd, swMinimize)
		}
	}
	return nil
}

func (user32Manager) Maximize(pid int) error {
	wins, err := enumerate()
	if err != nil {
		return err
	}
	for _, w := range wins {
		if w.pid == pid && w.title != "" {
			procShowWindow.Call(w.hwnd, swMaximize)
			procSetForeground.Call(w.hwnd)
		}
	}
	return nil
}

func (user32Manager) CloseByTitle(substr string) (int, error) {
	wins, err := enumerate()
	if err != nil {
		return 0, err
	}
	needle := strings.ToLower(substr)
	closed := 0
	for _, w := range wins {
		if strings.Contains(strings.ToLower(w.title), needle) {
			procPostMessageW.Call(w.hwnd, wmClose, 0, 0)
			closed++
		}
	}
	return closed, nil
}

func (user32Manager) Titles(pid int) ([]string, error) {
	wins, err := enumerate()
	if err != nil {
		return nil, err
	}
	var titles []string
	for _, w := range wins {
		if w.pid == pid && w.title != "" {
			titles = append(titles, w.title)
		}
	}
	return titles, nil
}
