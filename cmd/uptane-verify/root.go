/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kentakayama/uptane-trust/internal/config"
	"github.com/kentakayama/uptane-trust/internal/infra/sqlite"
)

// app is the state shared by every subcommand.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg    *config.Config
	logger *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "uptane-verify",
		Short: "Verify Uptane updates against Director and Image repositories",
		Long: `Verify Uptane updates against Director and Image repositories.
The verify command runs a full verification session, serve publishes stored
repositories over HTTP, import and generate manage the repository store.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file overlaid on the defaults")
	cmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "repository store (overrides store.path)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides log.level)")

	cmd.AddCommand(
		verifyCmd(a),
		serveCmd(a),
		importCmd(a),
		generateCmd(a),
		reportsCmd(a),
	)
	return cmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Store.Path = a.dbPath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	logger.SetOutput(cmd.ErrOrStderr())

	cfg.Verifier.Logger = logger
	cfg.Director.Logger = logger.WithField("repo", "director")
	cfg.Image.Logger = logger.WithField("repo", "image")
	cfg.Server.Logger = logger

	a.cfg = cfg
	a.logger = logger
	return nil
}

// openStore opens the configured store. The returned func closes it.
func (a *app) openStore(ctx context.Context) (*sqlite.Store, func(), error) {
	if a.cfg.Store.Path == "" {
		return nil, nil, fmt.Errorf("%w: store.path is empty", config.ErrInvalidConfig)
	}
	db, err := sqlite.InitDB(ctx, a.cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := sqlite.CloseDB(db); err != nil {
			a.logger.Warnf("failed to close store: %v", err)
		}
	}
	return sqlite.NewStore(db), closeFn, nil
}
