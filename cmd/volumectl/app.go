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
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/dell/storagevirt/pkg/base"
	"github.com/dell/storagevirt/pkg/base/command"
	"github.com/dell/storagevirt/pkg/base/config"
	"github.com/dell/storagevirt/pkg/base/featureconfig"
	"github.com/dell/storagevirt/pkg/base/linuxutils/fs"
	"github.com/dell/storagevirt/pkg/base/linuxutils/losetup"
	"github.com/dell/storagevirt/pkg/base/linuxutils/lvm"
	"github.com/dell/storagevirt/pkg/base/linuxutils/mdadm"
	"github.com/dell/storagevirt/pkg/base/util"
	metricsC "github.com/dell/storagevirt/pkg/metrics/common"
	"github.com/dell/storagevirt/pkg/storage"
	"github.com/dell/storagevirt/pkg/storage/volumes/loop"
	"github.com/dell/storagevirt/pkg/storage/volumes/raid"
	"github.com/dell/storagevirt/pkg/store"
	"github.com/dell/storagevirt/pkg/volumemgr"
)

// globalOptions are flags of root command, they override values of config file
type globalOptions struct {
	configPath string
	dbPath     string
	logLevel   string
	logPath    string
}

// registerTypes registers volume and snapshot types backed by system utils
var registerTypes = func(reg *storage.Registry, cfg *config.AgentConfig, logger *logrus.Logger) error {
	raidFeatures, err := featureconfig.NewFeatureConfigWithout(cfg.DisabledFeatures[raid.Type]...)
	if err != nil {
		return fmt.Errorf("invalid features of %s volumes: %w", raid.Type, err)
	}
	loopFeatures, err := featureconfig.NewFeatureConfigWithout(cfg.DisabledFeatures[loop.Type]...)
	if err != nil {
		return fmt.Errorf("invalid features of %s volumes: %w", loop.Type, err)
	}

	e := command.NewExecutor(logger)
	e.SetLevel(logrus.DebugLevel)

	md := mdadm.NewMdadm(e, logger)
	md.SetAttempts(cfg.CmdAttempts, base.DefaultCmdAttemptsDelay)
	fsOps := fs.NewFSImpl(e)

	raid.Register(raid.Deps{
		Registry:          reg,
		LVM:               lvm.NewLVM(e, logger),
		Mdadm:             md,
		FS:                fsOps,
		Logger:            logger,
		DeviceWaitTimeout: cfg.DeviceWaitTimeout,
		ArrayWaitTimeout:  cfg.ArrayWaitTimeout,
		Features:          raidFeatures,
	})
	loop.Register(loop.Deps{
		Registry: reg,
		FS:       fsOps,
		Losetup:  losetup.NewLosetup(e, logger),
		Logger:   logger,
		Dir:      cfg.LoopDir,
		Features: loopFeatures,
	})
	return nil
}

// app holds everything which is needed to run a single command
type app struct {
	cfg     *config.AgentConfig
	log     *logrus.Logger
	store   *store.BoltStore
	mgr     *volumemgr.VolumeManager
	metrics *prometheus.Registry
}

func newApp(opts *globalOptions) (*app, error) {
	cfg, err := config.ReadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logPath != "" {
		cfg.LogPath = opts.logPath
	}

	level, err := base.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger, err := base.InitLogger(cfg.LogPath, level)
	if cfg.LogPath == "" || err != nil {
		// stdout is reserved for command output
		logger.SetOutput(os.Stderr)
	}
	if err != nil {
		logger.Warnf("Can't set logger's output to %s. Using stderr instead.", cfg.LogPath)
	}

	promReg := prometheus.NewRegistry()
	if err = metricsC.Register(promReg); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	reg := storage.NewRegistry(logger)
	if err = registerTypes(reg, cfg, logger); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.DBPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory of %s: %w", cfg.DBPath, err)
	}
	st, err := store.NewBoltStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     logger,
		store:   st,
		mgr:     volumemgr.NewVolumeManager(reg, st, logger),
		metrics: promReg,
	}, nil
}

// close closes store and writes metrics for node exporter textfile collector
func (a *app) close() {
	ll := a.log.WithField("method", "close")
	if a.cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsTextfile, a.metrics); err != nil {
			ll.Errorf("Unable to write metrics to %s: %v", a.cfg.MetricsTextfile, err)
		}
	}
	if err := a.store.Close(); err != nil {
		ll.Errorf("Unable to close store: %v", err)
	}
}

// run executes f with app and context which is cancelled on termination signal
func run(opts *globalOptions, f func(ctx context.Context, a *app) error) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := util.NewSignalHandler(a.log).SetupTerminationContext(context.Background())
	defer cancel()
	return f(ctx, a)
}
