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

// Package fs contains code for communicating with system file utils such as sync/cp/truncate and so on
package fs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dell/storagevirt/pkg/base/command"
	errTypes "github.com/dell/storagevirt/pkg/base/error"
)

const (
	// SyncCmd flushes file system buffers
	SyncCmd = "sync"
	// MkDirCmdTmpl mkdir template
	MkDirCmdTmpl = "mkdir -p %s"
	// RmDirCmdTmpl rm template
	RmDirCmdTmpl = "rm -rf %s"
	// RmFileCmdTmpl rm template for single file
	RmFileCmdTmpl = "rm -f %s"
	// CopySparseCmdTmpl copy file keeping holes
	CopySparseCmdTmpl = "cp --sparse=always %s %s" // add source and destination
	// TruncateCmdTmpl set size of file in bytes
	TruncateCmdTmpl = "truncate --size %d %s" // add size and path
	// FileSizeCmdTmpl print size of file in bytes
	FileSizeCmdTmpl = "stat --format=%%s %s" // add path
)

// WrapFS is an interface that encapsulates operation with files and directories
type WrapFS interface {
	Sync() error
	MkDir(src string) error
	RmDir(src string) error
	RmFile(src string) error
	CopySparse(src, dst string) error
	Truncate(src string, size int64) error
	FileSize(src string) (int64, error)
	FileExists(src string) (bool, error)
}

// WrapFSImpl is a WrapFS implementation
type WrapFSImpl struct {
	e command.CmdExecutor
}

// NewFSImpl is a constructor for WrapFSImpl
func NewFSImpl(e command.CmdExecutor) *WrapFSImpl {
	return &WrapFSImpl{e: e}
}

func (h *WrapFSImpl) run(cmd string) (string, string, error) {
	return h.e.RunCmd(cmd,
		command.UseMetrics(true),
		command.CmdName(strings.Fields(cmd)[0]))
}

// Sync flushes file system buffers to disks
func (h *WrapFSImpl) Sync() error {
	_, _, err := h.run(SyncCmd)
	return err
}

// MkDir creates folder with parents
// Receives src path of a folder which should be created
// Returns error if something went wrong
func (h *WrapFSImpl) MkDir(src string) error {
	if _, _, err := h.run(fmt.Sprintf(MkDirCmdTmpl, src)); err != nil {
		return fmt.Errorf("failed to create dir %s: %w", src, err)
	}
	return nil
}

// RmDir removes folder with its content
func (h *WrapFSImpl) RmDir(src string) error {
	_, _, err := h.run(fmt.Sprintf(RmDirCmdTmpl, src))
	return err
}

// RmFile removes file, missing file isn't an error
func (h *WrapFSImpl) RmFile(src string) error {
	_, _, err := h.run(fmt.Sprintf(RmFileCmdTmpl, src))
	return err
}

// CopySparse copies src file to dst, holes of src stay holes in dst
func (h *WrapFSImpl) CopySparse(src, dst string) error {
	if _, _, err := h.run(fmt.Sprintf(CopySparseCmdTmpl, src, dst)); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// Truncate creates file if it doesn't exist and sets its size
func (h *WrapFSImpl) Truncate(src string, size int64) error {
	_, _, err := h.run(fmt.Sprintf(TruncateCmdTmpl, size, src))
	return err
}

// FileSize returns size of file in bytes
// Returns ErrorNotFound if file doesn't exist
func (h *WrapFSImpl) FileSize(src string) (int64, error) {
	stdout, stdErr, err := h.run(fmt.Sprintf(FileSizeCmdTmpl, src))
	if err != nil {
		if strings.Contains(stdErr, "No such file or directory") {
			return 0, fmt.Errorf("%w: file %s", errTypes.ErrorNotFound, src)
		}
		return 0, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(stdout), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: size of %s from %q", errTypes.ErrorFailedParsing, src, stdout)
	}
	return size, nil
}

// FileExists checks whether file exists
func (h *WrapFSImpl) FileExists(src string) (bool, error) {
	_, err := h.FileSize(src)
	switch {
	case err == nil:
		return true, nil
	case errTypes.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}
