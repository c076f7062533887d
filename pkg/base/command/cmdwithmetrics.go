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

package command

// Options is a functional option of RunCmd
type Options func(o *options)

type options struct {
	useMetrics bool
	cmdName    string
	method     string
}

// UseMetrics enables SystemCMDDuration metric for the command
func UseMetrics(use bool) Options {
	return func(o *options) {
		o.useMetrics = use
	}
}

// CmdName sets "name" label of the SystemCMDDuration metric, usually command template without arguments
func CmdName(name string) Options {
	return func(o *options) {
		o.cmdName = name
	}
}

// MethodName sets "method" label of the SystemCMDDuration metric
func MethodName(method string) Options {
	return func(o *options) {
		o.method = method
	}
}

func buildOptions(opts ...Options) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
