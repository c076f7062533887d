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
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// StrToBytes parses provided string and returns its value in bytes. Example: "15 KiB" -> 15360, "1GB" -> 1000000000
// Receives string value of information size with literal
// Returns provided size in bytes or error if something went wrong
func StrToBytes(str string) (int64, error) {
	value, err := humanize.ParseBytes(str)
	if err != nil {
		return 0, fmt.Errorf("unparseable size definition %q: %w", str, err)
	}
	if value > math.MaxInt64 {
		return 0, fmt.Errorf("size %q is too big", str)
	}
	return int64(value), nil
}

// FormatBytes returns human readable representation of size in IEC units, like "1.0 GiB"
func FormatBytes(size int64) string {
	if size < 0 {
		return fmt.Sprintf("%d B", size)
	}
	return humanize.IBytes(uint64(size))
}
