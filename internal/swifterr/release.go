//go:build !swiftdebug

package swifterr

// Debug is false unless the binary is built with -tags swiftdebug;
// see debug.go.
const Debug = false
