//go:build !windows

package fps

import "github.com/srodi/framelens/pkg/types"

type unsupportedFinder struct{}

func platformFinder() WindowFinder { return unsupportedFinder{} }

func (unsupportedFinder) Find(int32) (Window, error) { return 0, types.ErrUnsupported }

func (unsupportedFinder) Usable(Window) bool { return false }
