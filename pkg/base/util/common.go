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

// Package util contains helpers shared by system util wrappers and volume drivers
package util

import (
	"fmt"
	"strings"
)

// SplitAndTrimSpace splits s by sep, trims spaces from each part and skips empty parts
func SplitAndTrimSpace(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

// ParseKeyValues converts slice of "key=value" strings into map
// Returns error if some item doesn't contain "="
func ParseKeyValues(items []string) (map[string]string, error) {
	result := make(map[string]string, len(items))
	for _, item := range items {
		kv := strings.SplitN(item, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, fmt.Errorf("unable to parse %q, expected key=value", item)
		}
		result[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return result, nil
}
