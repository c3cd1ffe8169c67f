package exception

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/monitoring"
)

// SafeGo runs fn on a new goroutine and turns a panic into a logged,
// counted event. Background workers (prefetch, restore streams, report
// collection) must not take the whole run down.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("PANIC", fmt.Sprintf("goroutine %s: %v", name, r), string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// SafeGoWithPanic is SafeGo for goroutines whose failure leaves the
// process in an unusable state; it exits after logging.
func SafeGoWithPanic(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("PANIC", fmt.Sprintf("goroutine %s: %v", name, r), string(debug.Stack()))
				os.Exit(1)
			}
		}()
		fn()
	}()
}
