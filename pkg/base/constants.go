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

// Package base is for basic methods which can be used by all storage components
package base

import "time"

const (
	// AgentName is a name of the storage agent binary
	AgentName = "volumectl"

	// DefaultConfigPath is the path of agent configuration file
	DefaultConfigPath = "/etc/storagevirt/config.yaml"
	// DefaultDBPath is the path of bolt database with persisted volume configurations
	DefaultDBPath = "/var/lib/storagevirt/volumes.db"
	// DefaultLoopDir is a directory for backing files of loop volumes
	DefaultLoopDir = "/var/lib/storagevirt/loop"

	// DefaultDeviceWaitTimeout is the time in which device node of logical volume is expected to appear
	DefaultDeviceWaitTimeout = 120 * time.Second
	// DefaultArrayWaitTimeout is the time in which assembled array is expected to appear in /proc/mdstat
	DefaultArrayWaitTimeout = 60 * time.Second
	// DefaultPollInterval is the interval between checks of awaited condition
	DefaultPollInterval = time.Second

	// DefaultCmdAttempts is the number of attempts for commands which might fail on busy devices
	DefaultCmdAttempts = 3
	// DefaultCmdAttemptsDelay is the delay between attempts
	DefaultCmdAttemptsDelay = 500 * time.Millisecond

	// LogFormatEnv is the env variable which switches log format to text when set to "text"
	LogFormatEnv = "LOG_FORMAT"
)
