//go:build !(js && wasm)

package xlog

// platformLog is a no-op on native builds: stdout/stderr is already
// handled by Logger.output.Write.
func platformLog(level Level, msg string) {}
