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

package main

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/base/util"
	"github.com/dell/storagevirt/pkg/storage"
	"github.com/dell/storagevirt/pkg/storage/volumes/raid"
	"github.com/dell/storagevirt/pkg/volumemgr"
)

// readYAML reads mapping from file, "-" means stdin
func readYAML(path string, in io.Reader) (map[string]interface{}, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = ioutil.ReadAll(in)
	} else {
		data, err = ioutil.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	out := map[string]interface{}{}
	if err = yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errTypes.ErrorFailedParsing, path, err)
	}
	return out, nil
}

func printYAML(cmd *cobra.Command, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func newCreateCmd(opts *globalOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create -f <volume.yaml>",
		Short: "Create volume from configuration and ensure it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readYAML(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return run(opts, func(ctx context.Context, a *app) error {
				vol, err := a.mgr.Create(ctx, cfg)
				if err != nil {
					return err
				}
				return printYAML(cmd, vol.Config())
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "volume configuration, - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newEnsureCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure <volume-id>",
		Short: "Materialize device of volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, func(ctx context.Context, a *app) error {
				vol, err := a.mgr.Ensure(ctx, args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd, vol.Config())
			})
		},
	}
}

func newDetachCmd(opts *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "detach <volume-id>",
		Short: "Release device of volume keeping its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, func(ctx context.Context, a *app) error {
				return a.mgr.Detach(ctx, args[0], force)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "continue release steps on failures")
	return cmd
}

func newSnapshotCmd(opts *globalOptions) *cobra.Command {
	var (
		description string
		tags        []string
	)
	cmd := &cobra.Command{
		Use:   "snapshot <volume-id>",
		Short: "Take snapshot of volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, func(ctx context.Context, a *app) error {
				tagMap, err := util.ParseKeyValues(tags)
				if err != nil {
					return fmt.Errorf("%w: %v", errTypes.ErrorFailedParsing, err)
				}
				snap, err := a.mgr.Snapshot(ctx, args[0], description, tagMap)
				if err != nil {
					return err
				}
				return printYAML(cmd, snap.Config())
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "description of snapshot")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag of snapshot as key=value, could be repeated")
	return cmd
}

// growthConfig builds growth configuration from file or flags
func growthConfig(cmd *cobra.Command, file string, length int, foreachSize, size string) (storage.GrowthConfig, error) {
	cfg := storage.GrowthConfig{}
	if file != "" {
		raw, err := readYAML(file, cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		for k, v := range raw {
			cfg[k] = v
		}
	}
	if length > 0 {
		cfg[raid.GrowthLen] = length
	}
	if foreachSize != "" {
		cfg[raid.GrowthForeach] = map[string]interface{}{"size": foreachSize}
	}
	if size != "" {
		cfg["size"] = size
	}
	if len(cfg) == 0 {
		return nil, errTypes.NewStorageError("growth isn't specified, use --file, --len, --foreach-size or --size")
	}
	return cfg, nil
}

func newGrowCmd(opts *globalOptions) *cobra.Command {
	var (
		file        string
		length      int
		foreachSize string
		size        string
		keepSource  bool
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "grow <volume-id>",
		Short: "Grow volume into a new one",
		Long: `Grow detaches volume and creates a bigger copy of it. The copy replaces volume in the database,
source volume is destroyed unless --keep-source is set.

Raid volumes grow with --len (count of disks) and --foreach-size (size of every disk),
leaf volumes grow with --size.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := growthConfig(cmd, file, length, foreachSize, size)
			if err != nil {
				return err
			}
			return run(opts, func(ctx context.Context, a *app) error {
				if dryRun {
					result, err := a.mgr.CheckGrowth(args[0], cfg)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), result)
					return err
				}
				vol, err := a.mgr.Grow(ctx, args[0], cfg, volumemgr.GrowOptions{KeepSource: keepSource})
				if errTypes.IsNoOp(err) {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), storage.GrowthNoOp)
					return err
				}
				if err != nil {
					return err
				}
				return printYAML(cmd, vol.Config())
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "growth configuration, - for stdin")
	cmd.Flags().IntVar(&length, "len", 0, "new count of raid disks")
	cmd.Flags().StringVar(&foreachSize, "foreach-size", "", "new size of every raid disk")
	cmd.Flags().StringVar(&size, "size", "", "new size of volume")
	cmd.Flags().BoolVar(&keepSource, "keep-source", false, "keep detached source volume")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only check whether growth changes volume")
	return cmd
}

func newCloneCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clone <volume-id>",
		Short: "Create not ensured volume with the same configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, func(ctx context.Context, a *app) error {
				vol, err := a.mgr.Clone(ctx, args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd, vol.Config())
			})
		},
	}
}

func newDestroyCmd(opts *globalOptions) *cobra.Command {
	destroyOpts := storage.DestroyOptions{}
	cmd := &cobra.Command{
		Use:   "destroy <volume-id>",
		Short: "Destroy volume and remove it from database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, func(ctx context.Context, a *app) error {
				return a.mgr.Destroy(ctx, args[0], destroyOpts)
			})
		},
	}
	cmd.Flags().BoolVar(&destroyOpts.Force, "force", false, "destroy even if volume can't be detached")
	cmd.Flags().BoolVar(&destroyOpts.RemoveDisks, "remove-disks", false, "destroy disks of composite volume")
	return cmd
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var snapshots bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print configurations of volumes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, func(ctx context.Context, a *app) error {
				list := a.mgr.List
				if snapshots {
					list = a.mgr.ListSnapshots
				}
				configs, err := list()
				if err != nil {
					return err
				}
				if len(configs) == 0 {
					configs = []storage.Config{}
				}
				return printYAML(cmd, configs)
			})
		},
	}
	cmd.Flags().BoolVar(&snapshots, "snapshots", false, "print snapshots instead of volumes")
	return cmd
}

func newRestoreCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Create volume from snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, func(ctx context.Context, a *app) error {
				vol, err := a.mgr.Restore(ctx, args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd, vol.Config())
			})
		},
	}
}

func newSnapshotStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot-status <snapshot-id>",
		Short: "Print status of snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, func(ctx context.Context, a *app) error {
				status, err := a.mgr.SnapshotStatus(ctx, args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd, map[string]string{"id": args[0], "status": string(status)})
			})
		},
	}
}

func newSnapshotDestroyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot-destroy <snapshot-id>",
		Short: "Destroy snapshot and remove it from database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, func(ctx context.Context, a *app) error {
				return a.mgr.DestroySnapshot(ctx, args[0])
			})
		},
	}
}
