//go:build !amd64

package config

var legacyDeniedSyscalls []string
