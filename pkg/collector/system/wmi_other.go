//go:build !windows

package system

import "github.com/srodi/framelens/pkg/types"

func platformWMIQuery(string, string, interface{}) error {
	return types.ErrUnsupported
}
