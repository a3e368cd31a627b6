//go:build js && wasm

package xlog

import "syscall/js"

// platformLog mirrors a log line to the browser's JS console, so
// worker-side logging is visible in devtools even when stdout isn't.
func platformLog(level Level, msg string) {
	console := js.Global().Get("console")
	if console.Type() != js.TypeObject {
		return
	}
	method := "log"
	switch level {
	case Debug:
		method = "debug"
	case Warn:
		method = "warn"
	case Error:
		method = "error"
	}
	console.Call(method, msg)
}
