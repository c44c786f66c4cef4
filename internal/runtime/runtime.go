/**
 * Copyright 2017 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package runtime adapts the teacher's process-lifecycle idiom —
// tr1d1um.go's concurrent.Execute(tr1d1umServer) followed by
// server.SignalWait(infoLogger, signals, os.Kill, os.Interrupt) — to
// devbridge's two long-lived runnables: the admin/websocket HTTP
// listener and the device manager's communication-manager pump. Neither
// of those is itself spec.md scope (§1 places the CLI entry point and
// concrete transports outside the core), so this package only owns
// process orchestration, never session or device logic.
package runtime

import (
	"os"
	"os/signal"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/xmidt-org/webpa-common/concurrent"
	"github.com/xmidt-org/webpa-common/server"
)

// Runnable is anything concurrent.Execute can start and later stop via
// its shutdown channel — an *http.Server wrapped the way webpa-common's
// server.WebPA.Prepare returns one, or a func(<-chan struct{}) error
// closure around device.Manager.Run.
type Runnable = concurrent.Runnable

// Func adapts a plain shutdown-aware closure to a Runnable, the same
// role concurrent.RunnableFunc plays for webpa-common's own server
// goroutines.
func Func(fn func(shutdown <-chan struct{}) error) Runnable {
	return concurrent.RunnableFunc(fn)
}

// Run starts every runnable concurrently, blocks until this process
// receives SIGINT/SIGKILL, then closes the shared shutdown channel and
// waits for every runnable to return — exactly tr1d1um.go's main-line
// shape, just generalized past one HTTP server.
func Run(logger log.Logger, runnables ...Runnable) int {
	infoLog, errorLog := level.Info(logger), level.Error(logger)

	waitGroup, shutdown, err := concurrent.Execute(runnables...)
	if err != nil {
		errorLog.Log("msg", "unable to start devbridge", "err", err)
		return 4
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals)
	s := server.SignalWait(infoLog, signals, os.Kill, os.Interrupt)
	infoLog.Log("msg", "exiting due to signal", "signal", s)

	close(shutdown)
	waitGroup.Wait()
	return 0
}
