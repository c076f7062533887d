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

// volumectl manages lifecycle of host storage volumes: raid arrays over loop devices and other volumes
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dell/storagevirt/pkg/base"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   base.AgentName,
		Short: "Manage host storage volumes and snapshots",
		Long: `volumectl creates, ensures, snapshots, grows and destroys volumes described with YAML.

Volume configurations are kept in a local database, so every command refers to a volume by id.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", base.DefaultConfigPath, "path of agent config file")
	flags.StringVar(&opts.dbPath, "db", "", "path of volumes database, overrides config")
	flags.StringVar(&opts.logLevel, "loglevel", "", "log level (trace, debug, info, warn, error), overrides config")
	flags.StringVar(&opts.logPath, "logpath", "", "log file, stdout is used if empty, overrides config")

	root.AddCommand(
		newCreateCmd(opts),
		newEnsureCmd(opts),
		newDetachCmd(opts),
		newSnapshotCmd(opts),
		newGrowCmd(opts),
		newCloneCmd(opts),
		newDestroyCmd(opts),
		newListCmd(opts),
		newRestoreCmd(opts),
		newSnapshotStatusCmd(opts),
		newSnapshotDestroyCmd(opts),
	)
	return root
}
