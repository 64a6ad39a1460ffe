//go:build windows

package fps

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procEnumWindows              = user32.NewProc("EnumWindows")
	procIsWindow                 = user32.NewProc("IsWindow")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procGetWindowLongW           = user32.NewProc("GetWindowLongW")
	procGetClientRect            = user32.NewProc("GetClientRect")
)

const wsVisible = 0x10000000

var gwlStyle = int32(-16)

type rect struct {
	Left, Top, Right, Bottom int32
}

// EnumWindows callbacks cannot be released, so one callback serves every
// search and searches are serialized.
var (
	enumMu    sync.Mutex
	enumPID   uint32
	enumFound uintptr
	enumThunk uintptr
	enumOnce  sync.Once
)

type user32Finder struct{}

func platformFinder() WindowFinder { return user32Finder{} }

func (user32Finder) Find(pid int32) (Window, error) {
	if err := procEnumWindows.Find(); err != nil {
		return 0, err
	}
	enumOnce.Do(func() {
		enumThunk = windows.NewCallback(enumWindowsProc)
	})

	enumMu.Lock()
	defer enumMu.Unlock()
	enumPID = uint32(pid)
	enumFound = 0
	// EnumWindows reports failure when the callback stops early, so its
	// return value is ignored and the result read from enumFound.
	_, _, _ = procEnumWindows.Call(enumThunk, 0)
	return Window(enumFound), nil
}

func (user32Finder) Usable(w Window) bool {
	if w == 0 {
		return false
	}
	if r, _, _ := procIsWindow.Call(uintptr(w)); r == 0 {
		return false
	}
	return hasClientArea(uintptr(w))
}

func enumWindowsProc(hwnd, _ uintptr) uintptr {
	if r, _, _ := procIsWindowVisible.Call(hwnd); r == 0 {
		return 1
	}
	var owner uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&owner)))
	if owner != enumPID {
		return 1
	}
	style, _, _ := procGetWindowLongW.Call(hwnd, uintptr(gwlStyle))
	if style&wsVisible == 0 {
		return 1
	}
	if !hasClientArea(hwnd) {
		return 1
	}
	enumFound = hwnd
	return 0
}

func hasClientArea(hwnd uintptr) bool {
	var rc rect
	if r, _, _ := procGetClientRect.Call(hwnd, uintptr(unsafe.Pointer(&rc))); r == 0 {
		return false
	}
	return rc.Right-rc.Left > 0 && rc.Bottom-rc.Top > 0
}
