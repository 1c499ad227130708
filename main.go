/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/testbed"
)

func main() {
	tb := testbed.NewTestGame()

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogError(err.Error())
		os.Exit(1)
	}

	if err := e.Initialize(); err != nil {
		core.LogError("initialization failed: %s", err)
		_ = e.Shutdown()
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// the loop owns the window and the device, so only ask it to stop
	go func() {
		<-sigCh
		e.Quit()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogError(runErr.Error())
		os.Exit(1)
	}
}
