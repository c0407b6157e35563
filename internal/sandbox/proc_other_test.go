//go:build !linux

package sandbox

import "testing"

func assertReaped(*testing.T, int) {}
