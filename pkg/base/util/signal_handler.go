/*
Copyright © 2020 Dell Inc. or its subsidiaries. All Rights Reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// SignalHandler is a structure which contains methods for signal handling
type SignalHandler struct {
	log *logrus.Entry
}

// NewSignalHandler is a constructor for SignalHandler
func NewSignalHandler(logger *logrus.Logger) *SignalHandler {
	return &SignalHandler{log: logger.WithField("component", "SignalHandler")}
}

// SetupTerminationContext returns context which is cancelled when SIGTERM or SIGINT is caught.
// Running operations are not interrupted by the signal, only new blocking waits observe cancellation
func (sh *SignalHandler) SetupTerminationContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(signalChan)
		select {
		case sig := <-signalChan:
			sh.log.WithField("method", "SetupTerminationContext").Infof("Got %v signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
