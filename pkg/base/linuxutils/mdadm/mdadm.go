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

// Package mdadm contains code for running and interpreting output of system software RAID util mdadm
package mdadm

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dell/storagevirt/pkg/base/command"
	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/base/polling"
)

const (
	// mdadmPath is a path in the system to the mdadm util
	mdadmPath = "/sbin/mdadm "
	// CreateCmdTmpl create array cmd
	CreateCmdTmpl = mdadmPath + "--create %s --run %s--level=%d --raid-devices=%d %s" // add device, options, level, count and members
	// ForceOpt is used for create and for remove of array
	ForceOpt = "--force "
	// AssumeCleanOpt skips initial resync
	AssumeCleanOpt = "--assume-clean "
	// MetadataOptTmpl sets superblock format
	MetadataOptTmpl = "--metadata=%s " // add metadata version
	// AssembleCmdTmpl assemble existing array from its members
	AssembleCmdTmpl = mdadmPath + "--assemble %s %s" // add device and members
	// WaitCmdTmpl wait for resync/recovery/reshape of array
	WaitCmdTmpl = mdadmPath + "--misc --wait %s" // add device
	// StopCmdTmpl stop array
	StopCmdTmpl = mdadmPath + "--misc --stop --force %s" // add device
	// RemoveCmdTmpl remove array device
	RemoveCmdTmpl = mdadmPath + "--manage --remove --force %s" // add device
	// AddCmdTmpl add members to array
	AddCmdTmpl = mdadmPath + "--manage %s --add %s" // add device and members
	// GrowRaidDevicesCmdTmpl change count of active members
	GrowRaidDevicesCmdTmpl = mdadmPath + "--grow %s --raid-devices=%d" // add device and count
	// GrowMaxSizeCmdTmpl use all space of members
	GrowMaxSizeCmdTmpl = mdadmPath + "--grow %s --size=max" // add device
	// MdstatCmd print state of all arrays
	MdstatCmd = "cat /proc/mdstat"

	// DefaultMetadata lets mdadm choose superblock format
	DefaultMetadata = "default"
	// maxArrays limits search of free device name
	maxArrays = 1024
)

// CreateOptions holds options of array creation
type CreateOptions struct {
	Level       int
	Force       bool
	AssumeClean bool
	Metadata    string
}

// Array is an array parsed from /proc/mdstat
type Array struct {
	// Name is a name of array like md0
	Name  string
	Level string
	// Members are names of member devices like loop0
	Members []string
}

// WrapMdadm is an interface that encapsulates operation with system software RAID util
type WrapMdadm interface {
	Create(dev string, opts CreateOptions, members ...string) error
	Assemble(dev string, members ...string) error
	GrowRaidDevices(dev string, count int) error
	GrowMaxSize(dev string) error
	Add(dev string, members ...string) error
	Remove(dev string) error
	Wait(dev string)
	Stop(dev string) error
	FindDevice(members ...string) (string, error)
	FindFreeDeviceName() (string, error)
	WaitForArray(ctx context.Context, dev string, timeout time.Duration) error
}

// Mdadm is an implementation of WrapMdadm interface and is a wrap for system /sbin/mdadm util
type Mdadm struct {
	e   command.CmdExecutor
	log *logrus.Entry
	// pollInterval is used by WaitForArray
	pollInterval time.Duration
	// attempts of commands which fail while array is still busy
	attempts      int
	attemptsDelay time.Duration
}

// NewMdadm is a constructor for Mdadm struct
func NewMdadm(e command.CmdExecutor, l *logrus.Logger) *Mdadm {
	return &Mdadm{
		e:            e,
		log:          l.WithField("component", "Mdadm"),
		pollInterval: time.Second,
		attempts:     1,
	}
}

// SetAttempts sets amount of attempts for Stop, which fails while array is still held by device mapper
func (m *Mdadm) SetAttempts(attempts int, delay time.Duration) {
	m.attempts = attempts
	m.attemptsDelay = delay
}

func (m *Mdadm) run(method, tmpl string, args ...interface{}) (string, string, error) {
	return m.e.RunCmd(fmt.Sprintf(tmpl, args...),
		command.UseMetrics(true),
		command.CmdName(strings.TrimSpace(mdadmPath)),
		command.MethodName(method))
}

// Create creates new array on provided members
// Receives device path of array like /dev/md0, CreateOptions and device paths of members
// Returns error if something went wrong
func (m *Mdadm) Create(dev string, opts CreateOptions, members ...string) error {
	var options string
	if opts.Force {
		options += ForceOpt
	}
	if opts.AssumeClean {
		options += AssumeCleanOpt
	}
	if opts.Metadata != "" {
		options += fmt.Sprintf(MetadataOptTmpl, opts.Metadata)
	}
	_, _, err := m.run("Create", CreateCmdTmpl, dev, options, opts.Level, len(members), strings.Join(members, " "))
	return err
}

// Assemble assembles previously created array from its members
func (m *Mdadm) Assemble(dev string, members ...string) error {
	_, _, err := m.run("Assemble", AssembleCmdTmpl, dev, strings.Join(members, " "))
	return err
}

// GrowRaidDevices sets count of active members of array
func (m *Mdadm) GrowRaidDevices(dev string, count int) error {
	_, _, err := m.run("GrowRaidDevices", GrowRaidDevicesCmdTmpl, dev, count)
	return err
}

// GrowMaxSize makes array to use all available space of its members
func (m *Mdadm) GrowMaxSize(dev string) error {
	_, _, err := m.run("GrowMaxSize", GrowMaxSizeCmdTmpl, dev)
	return err
}

// Add adds members into array as spares, GrowRaidDevices makes them active
func (m *Mdadm) Add(dev string, members ...string) error {
	_, _, err := m.run("Add", AddCmdTmpl, dev, strings.Join(members, " "))
	return err
}

// Remove removes array, ignore error if array device doesn't exist
func (m *Mdadm) Remove(dev string) error {
	_, stdErr, err := m.run("Remove", RemoveCmdTmpl, dev)
	if err != nil && (strings.Contains(stdErr, "No such file or directory") ||
		strings.Contains(stdErr, "does not exist")) {
		return nil
	}
	return err
}

// Wait waits until resync, recovery or reshape of array is finished.
// mdadm exits with non-zero code when there is nothing to wait, so errors are only logged
func (m *Mdadm) Wait(dev string) {
	if _, stdErr, err := m.run("Wait", WaitCmdTmpl, dev); err != nil {
		m.log.WithField("method", "Wait").Debugf("mdadm wait for %s finished with %v: %s", dev, err, stdErr)
	}
}

// Stop stops array
func (m *Mdadm) Stop(dev string) error {
	_, _, err := m.e.RunCmdWithAttempts(fmt.Sprintf(StopCmdTmpl, dev), m.attempts, m.attemptsDelay,
		command.UseMetrics(true),
		command.CmdName(strings.TrimSpace(mdadmPath)),
		command.MethodName("Stop"))
	return err
}

// Arrays parses /proc/mdstat and returns all active arrays
func (m *Mdadm) Arrays() ([]Array, error) {
	stdout, _, err := m.e.RunCmd(MdstatCmd)
	if err != nil {
		return nil, err
	}
	return parseMdstat(stdout), nil
}

// parseMdstat parses lines like "md127 : active raid1 loop1[1] loop0[0]"
func parseMdstat(mdstat string) []Array {
	var arrays []Array
	for _, line := range strings.Split(mdstat, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || !strings.HasPrefix(fields[0], "md") || fields[1] != ":" {
			continue
		}
		array := Array{Name: fields[0]}
		for _, field := range fields[2:] {
			idx := strings.Index(field, "[")
			switch {
			case idx > 0:
				array.Members = append(array.Members, field[:idx])
			case strings.HasPrefix(field, "raid"), field == "linear":
				array.Level = field
			}
		}
		arrays = append(arrays, array)
	}
	return arrays
}

// FindDevice finds array which consists of provided members
// Receives device paths of members, order doesn't matter
// Returns device path of array or ErrorNotFound
func (m *Mdadm) FindDevice(members ...string) (string, error) {
	arrays, err := m.Arrays()
	if err != nil {
		return "", err
	}
	expected := baseNames(members)
	for _, array := range arrays {
		actual := append([]string(nil), array.Members...)
		sort.Strings(actual)
		if strings.Join(actual, " ") == strings.Join(expected, " ") {
			return "/dev/" + array.Name, nil
		}
	}
	return "", fmt.Errorf("%w: array with members %v", errTypes.ErrorNotFound, members)
}

// FindFreeDeviceName returns first /dev/mdN which isn't used by active array
func (m *Mdadm) FindFreeDeviceName() (string, error) {
	arrays, err := m.Arrays()
	if err != nil {
		return "", err
	}
	used := make(map[string]bool, len(arrays))
	for _, array := range arrays {
		used[array.Name] = true
	}
	for i := 0; i < maxArrays; i++ {
		if name := fmt.Sprintf("md%d", i); !used[name] {
			return "/dev/" + name, nil
		}
	}
	return "", errTypes.NewStorageError("no free md device name among %d", maxArrays)
}

// WaitForArray waits until array appears in /proc/mdstat
// Returns StorageError if array didn't appear in timeout
func (m *Mdadm) WaitForArray(ctx context.Context, dev string, timeout time.Duration) error {
	name := filepath.Base(dev)
	return polling.WaitUntil(ctx, func() (bool, error) {
		arrays, err := m.Arrays()
		if err != nil {
			return false, err
		}
		for _, array := range arrays {
			if array.Name == name {
				return true, nil
			}
		}
		return false, nil
	}, polling.WaitOptions{
		Interval:  m.pollInterval,
		Timeout:   timeout,
		ErrorText: fmt.Sprintf("array %s didn't appear in /proc/mdstat", dev),
	})
}

func baseNames(paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	sort.Strings(names)
	return names
}
