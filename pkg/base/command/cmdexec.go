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

// Package command contains code for running system utils
package command

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/dell/storagevirt/pkg/metrics/common"
)

// minAttemptsDelay is used by RunCmdWithAttempts when delay between attempts isn't set
const minAttemptsDelay = 10 * time.Millisecond

// CmdExecutor is the interface for executor that runs linux commands with RunCmd
type CmdExecutor interface {
	RunCmd(cmd interface{}, opts ...Options) (string, string, error)
	RunCmdWithAttempts(cmd interface{}, attempts int, timeout time.Duration, opts ...Options) (string, string, error)
	SetLogger(logger *logrus.Logger)
	SetLevel(level logrus.Level)
}

// ExecError is returned when command was started but finished unsuccessfully
type ExecError struct {
	Cmd      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("command \"%s\" failed: %v", e.Cmd, e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ", stderr: " + stderr
	}
	return msg
}

// Unwrap returns underlying error from os/exec
func (e *ExecError) Unwrap() error {
	return e.Err
}

// Executor is the implementation of CmdExecutor based on os/exec package
type Executor struct {
	log      *logrus.Entry
	msgLevel logrus.Level
	clock    clock.Clock
}

// NewExecutor is a constructor for Executor
func NewExecutor(logger *logrus.Logger) *Executor {
	e := &Executor{}
	e.SetLogger(logger)
	return e
}

// SetLogger sets logrus logger to Executor struct
// Receives logrus logger
func (e *Executor) SetLogger(logger *logrus.Logger) {
	e.log = logger.WithField("component", "Executor")
}

// SetLevel sets logrus Level to Executor msgLevel field
// Receives logrus Level
func (e *Executor) SetLevel(level logrus.Level) {
	e.msgLevel = level
}

// RunCmd runs specified command on OS
// Receives command as empty interface. It could be string or instance of exec.Cmd
// Returns stdout as string, stderr as string and golang error if something went wrong
func (e *Executor) RunCmd(cmd interface{}, opts ...Options) (string, string, error) {
	o := buildOptions(opts...)
	if o.useMetrics {
		defer common.SystemCMDDuration.EvaluateDuration(prometheus.Labels{
			"name":   o.cmdName,
			"method": o.method})()
	}
	if cmdStr, ok := cmd.(string); ok {
		return e.runCmdFromStr(cmdStr)
	}
	if cmdObj, ok := cmd.(*exec.Cmd); ok {
		return e.runCmdFromCmdObj(cmdObj)
	}
	return "", "", fmt.Errorf("could not interpret command from %v", cmd)
}

// RunCmdWithAttempts runs specified command on OS with provided amount of attempts.
// Errors which are not ExecError (command could not be interpreted or started) are not retried
// Receives cmd (see RunCmd), amount of attempts and timeout between attempts
// Returns stdout, stderr and error of the last attempt
func (e *Executor) RunCmdWithAttempts(cmd interface{}, attempts int, timeout time.Duration,
	opts ...Options) (stdout string, stderr string, err error) {
	if attempts < 1 {
		attempts = 1
	}
	if timeout <= 0 {
		timeout = minAttemptsDelay
	}
	clk := e.clock
	if clk == nil {
		clk = clock.WallClock
	}
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			var runErr error
			stdout, stderr, runErr = e.RunCmd(cmd, opts...)
			return runErr
		},
		IsFatalError: func(err error) bool {
			var execErr *ExecError
			return !errors.As(err, &execErr)
		},
		NotifyFunc: func(lastErr error, attempt int) {
			e.logger().Warnf("Attempt %d of %d failed: %v", attempt, attempts, lastErr)
		},
		Attempts: attempts,
		Delay:    timeout,
		Clock:    clk,
	})
	return stdout, stderr, retry.LastError(err)
}

// runCmdFromStr gets command as a string, like: "netstat -n -a -p" and transform it into exec.Command type
// and runs runCmdFromCmdObj(cmd)
// Receives command as a string like: bash -c "something -param" are not supported
// Returns stdout as string, stderr as string and golang error if something went wrong
func (e *Executor) runCmdFromStr(cmd string) (string, string, error) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", "", fmt.Errorf("could not interpret command from empty string")
	}
	name := fields[0]
	if len(fields) > 1 {
		return e.runCmdFromCmdObj(exec.Command(name, fields[1:]...))
	}
	return e.runCmdFromCmdObj(exec.Command(name))
}

// runCmdFromCmdObj runs command based on exec.Cmd
// Receives instance of exec.Cmd
// Returns stdout as string, stderr as string and golang error if something went wrong
func (e *Executor) runCmdFromCmdObj(cmd *exec.Cmd) (outStr string, errStr string, err error) {
	var (
		level               = e.msgLevel
		stdout, stderr      bytes.Buffer
		stdErrPart, errPart string
		cmdLine             = strings.Join(cmd.Args, " ")
	)
	if level == 0 {
		level = logrus.DebugLevel
	}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmdStartTime := time.Now()
	err = cmd.Run()
	cmdDuration := time.Since(cmdStartTime)

	outStr, errStr = stdout.String(), stderr.String()
	// construct log message based on output and error
	if len(errStr) > 0 {
		stdErrPart = fmt.Sprintf(", stderr: %s", errStr)
		level = logrus.WarnLevel
	}
	if err != nil {
		errPart = fmt.Sprintf(", Error: %v", err)
		level = logrus.ErrorLevel
		execErr := &ExecError{Cmd: cmdLine, ExitCode: -1, Stderr: errStr, Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
		err = execErr
	}
	e.logger().WithFields(logrus.Fields{
		"cmd":         cmdLine,
		"duration":    cmdDuration.String(),
		"duration_ns": cmdDuration.Nanoseconds()}).
		Logf(level, "stdout: %s%s%s", outStr, stdErrPart, errPart)
	return outStr, errStr, err
}

func (e *Executor) logger() *logrus.Entry {
	if e.log == nil {
		e.log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "Executor")
	}
	return e.log
}
