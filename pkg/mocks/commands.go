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

import "errors"

// Err var of type error for test purposes
var Err = errors.New("error")

// EmptyOutSuccess var of type CmdOut for test purposes
var EmptyOutSuccess = CmdOut{
	Stdout: "",
	Stderr: "",
	Err:    nil,
}

// LoopDir is a directory of loop backing files used in LoopCommands
const LoopDir = "/var/lib/storagevirt/loop"

// LoopVolumeID is an id of loop volume used in LoopCommands
const LoopVolumeID = "loop-test"

// LoopDevice is a loop device which is attached in LoopCommands
const LoopDevice = "/dev/loop3"

// LoopCommands is the map that contains outputs of commands which create, attach, detach and remove
// 1MiB loop volume LoopVolumeID in LoopDir
var LoopCommands = map[string]CmdOut{
	"stat --format=%s " + LoopDir + "/" + LoopVolumeID + ".img": {
		Stdout: "",
		Stderr: "stat: cannot statx '" + LoopDir + "/" + LoopVolumeID + ".img': No such file or directory",
		Err:    errors.New("exit status 1"),
	},
	"mkdir -p " + LoopDir: EmptyOutSuccess,
	"truncate --size 1048576 " + LoopDir + "/" + LoopVolumeID + ".img": EmptyOutSuccess,
	"losetup -j " + LoopDir + "/" + LoopVolumeID + ".img":                EmptyOutSuccess,
	"losetup -fP --show " + LoopDir + "/" + LoopVolumeID + ".img": {
		Stdout: LoopDevice + "\n",
		Stderr: "",
		Err:    nil,
	},
	"losetup -d " + LoopDevice: EmptyOutSuccess,
	"rm -f " + LoopDir + "/" + LoopVolumeID + ".img": EmptyOutSuccess,
}
