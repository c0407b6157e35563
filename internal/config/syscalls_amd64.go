package config

// legacyDeniedSyscalls are the pre-*at file syscalls amd64 still exposes.
var legacyDeniedSyscalls = []string{"open", "creat", "unlink", "mkdir", "rmdir"}
