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

package mocks

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/dell/storagevirt/pkg/base/command"
)

// noLogger implements logger related methods of CmdExecutor for mock executors
type noLogger struct{}

// SetLogger does nothing for mock executors
func (noLogger) SetLogger(*logrus.Logger) {}

// SetLevel does nothing for mock executors
func (noLogger) SetLevel(logrus.Level) {}

// CmdOut is the struct for command output
type CmdOut struct {
	Stdout string
	Stderr string
	Err    error
}

// MockExecutor implements CmdExecutor over recorded outputs of commands.
// Commands missing in the map fail, executed commands are kept in order
type MockExecutor struct {
	noLogger
	mu        sync.Mutex
	cmdMap    map[string]CmdOut
	runBefore []string
}

// NewMockExecutor returns MockExecutor which answers with outputs from m
func NewMockExecutor(m map[string]CmdOut) *MockExecutor {
	return &MockExecutor{cmdMap: m}
}

// SetMap replaces recorded outputs
func (e *MockExecutor) SetMap(m map[string]CmdOut) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmdMap = m
}

// RunCmd returns recorded output of cmd, which must be a string
func (e *MockExecutor) RunCmd(cmd interface{}, _ ...command.Options) (string, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cmdStr := cmd.(string)
	res, ok := e.cmdMap[cmdStr]
	if !ok {
		return "", "", fmt.Errorf("unable find results for key %s", cmdStr)
	}
	e.runBefore = append(e.runBefore, cmdStr)
	return res.Stdout, res.Stderr, res.Err
}

// RunCmdWithAttempts runs RunCmd once, attempts are ignored
func (e *MockExecutor) RunCmdWithAttempts(cmd interface{}, _ int, _ time.Duration, opts ...command.Options) (string, string, error) {
	return e.RunCmd(cmd, opts...)
}

// RunBefore returns commands which were found in map in order of execution
func (e *MockExecutor) RunBefore() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.runBefore...)
}

// RunCmd is the name of CmdExecutor method name
var RunCmd = "RunCmd"

// GoMockExecutor implements CmdExecutor based on stretchr/testify/mock
type GoMockExecutor struct {
	mock.Mock
	noLogger
}

// RunCmd returns values set with OnCommand
func (g *GoMockExecutor) RunCmd(cmd interface{}, _ ...command.Options) (string, string, error) {
	args := g.Mock.Called(cmd.(string))
	return args.String(0), args.String(1), args.Error(2)
}

// RunCmdWithAttempts simulates execution of a command, attempts are ignored
func (g *GoMockExecutor) RunCmdWithAttempts(cmd interface{}, _ int, _ time.Duration, opts ...command.Options) (string, string, error) {
	return g.RunCmd(cmd, opts...)
}

// OnCommand sets what to return on specified command, e.g.
// e.OnCommand("/sbin/lvm pvcreate --yes /dev/md0").Return("", "", errors.New("pvcreate failed"))
func (g *GoMockExecutor) OnCommand(cmd string) *mock.Call {
	return g.On(RunCmd, cmd)
}
