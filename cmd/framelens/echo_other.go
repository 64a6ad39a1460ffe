//go:build !linux

package main

// disableInputEcho is a no-op where the termios request codes differ.
func disableInputEcho(int) (func(), error) {
	return nil, nil
}
