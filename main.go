package main

import (
	"os"
	"runtime/debug"

	"github.com/mezonai/mmn-replay/cmd"
	"github.com/mezonai/mmn-replay/logx"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_ = logx.Errorf("REPLAY CRASHED: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
