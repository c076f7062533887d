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

// Package logger contains logrus formatters used by storage components
package logger

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// FunctionKey holds the function field
const FunctionKey = "function"

// FileKey holds the file field
const FileKey = "file"

const (
	// frames of callerPosition and Format
	formatterStackJump = 2
	maxStackLookup     = 16
)

// RuntimeFormatter decorates log entries with function name and file position of the caller
// for levels which are not more verbose than MaxLevel
type RuntimeFormatter struct {
	ChildFormatter logrus.Formatter
	MaxLevel       logrus.Level
}

// NewRuntimeFormatter is a constructor for RuntimeFormatter
func NewRuntimeFormatter(child logrus.Formatter, maxLevel logrus.Level) *RuntimeFormatter {
	return &RuntimeFormatter{ChildFormatter: child, MaxLevel: maxLevel}
}

// Format the current log entry by adding the function name and line number of the caller.
func (f *RuntimeFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	data := make(logrus.Fields, len(entry.Data)+2)
	if f.MaxLevel >= entry.Level {
		if function, file, ok := callerPosition(); ok {
			data[FunctionKey] = function[strings.LastIndex(function, ".")+1:]
			data[FileKey] = file
		}
	}
	for k, v := range entry.Data {
		data[k] = v
	}
	entry.Data = data

	return f.ChildFormatter.Format(entry)
}

// callerPosition skips logrus frames and returns the first frame outside of it
func callerPosition() (string, string, bool) {
	for skip := formatterStackJump; skip < formatterStackJump+maxStackLookup; skip++ {
		pc, file, line, ok := runtime.Caller(skip)
		if !ok {
			return "", "", false
		}
		function := runtime.FuncForPC(pc).Name()
		if strings.Contains(function, "sirupsen/logrus.") {
			continue
		}
		position := filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file)) + ":" + strconv.Itoa(line)
		return function, position, true
	}
	return "", "", false
}
