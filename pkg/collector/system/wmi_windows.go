//go:build windows

package system

import "github.com/yusufpapurcu/wmi"

func platformWMIQuery(query, namespace string, dst interface{}) error {
	return wmi.QueryNamespace(query, dst, namespace)
}
