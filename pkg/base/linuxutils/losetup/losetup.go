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

// Package losetup contains code for running and interpreting output of loop devices setup util
package losetup

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dell/storagevirt/pkg/base/command"
	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/base/util"
)

const (
	// requires root privileges
	losetupCmd = "losetup"
	// AttachCmdTmpl bind file to first unused loop device and print its name
	AttachCmdTmpl = losetupCmd + " -fP --show %s" // add file
	// DetachCmdTmpl detach loop device
	DetachCmdTmpl = losetupCmd + " -d %s" // add device
	// RefreshCapacityCmdTmpl reread size of backing file
	RefreshCapacityCmdTmpl = losetupCmd + " -c %s" // add device
	// FindByFileCmdTmpl print loop devices bound to file
	FindByFileCmdTmpl = losetupCmd + " -j %s" // add file
)

// WrapLosetup is an interface that encapsulates operation with loop devices
type WrapLosetup interface {
	Attach(file string) (string, error)
	Detach(dev string) error
	RefreshCapacity(dev string) error
	FindByFile(file string) (string, error)
}

// Losetup is an implementation of WrapLosetup interface
type Losetup struct {
	e   command.CmdExecutor
	log *logrus.Entry
}

// NewLosetup is a constructor for Losetup struct
func NewLosetup(e command.CmdExecutor, l *logrus.Logger) *Losetup {
	return &Losetup{
		e:   e,
		log: l.WithField("component", "Losetup"),
	}
}

// Attach binds file to unused loop device
// Returns path of loop device like /dev/loop0
func (l *Losetup) Attach(file string) (string, error) {
	stdout, _, err := l.e.RunCmd(fmt.Sprintf(AttachCmdTmpl, file),
		command.UseMetrics(true), command.CmdName(losetupCmd), command.MethodName("Attach"))
	if err != nil {
		return "", err
	}
	dev := strings.TrimSpace(stdout)
	if !strings.HasPrefix(dev, "/dev/") {
		return "", fmt.Errorf("%w: loop device of %s from %q", errTypes.ErrorFailedParsing, file, stdout)
	}
	return dev, nil
}

// Detach unbinds loop device, ignore error if device isn't bound
func (l *Losetup) Detach(dev string) error {
	_, stdErr, err := l.e.RunCmd(fmt.Sprintf(DetachCmdTmpl, dev),
		command.UseMetrics(true), command.CmdName(losetupCmd), command.MethodName("Detach"))
	if err != nil && strings.Contains(stdErr, "No such device or address") {
		l.log.WithField("method", "Detach").Infof("Loop device %s is already detached", dev)
		return nil
	}
	return err
}

// RefreshCapacity makes loop device to see new size of its backing file
func (l *Losetup) RefreshCapacity(dev string) error {
	_, _, err := l.e.RunCmd(fmt.Sprintf(RefreshCapacityCmdTmpl, dev))
	return err
}

// FindByFile returns loop device bound to file or empty string if there is no one
func (l *Losetup) FindByFile(file string) (string, error) {
	// /dev/loop0: [64769]:1835043 (/var/lib/storagevirt/loop/loop-1.img)
	stdout, _, err := l.e.RunCmd(fmt.Sprintf(FindByFileCmdTmpl, file))
	if err != nil {
		return "", err
	}
	lines := util.SplitAndTrimSpace(stdout, "\n")
	if len(lines) == 0 {
		return "", nil
	}
	idx := strings.Index(lines[0], ":")
	if idx <= 0 {
		return "", fmt.Errorf("%w: losetup output %q", errTypes.ErrorFailedParsing, lines[0])
	}
	return lines[0][:idx], nil
}
