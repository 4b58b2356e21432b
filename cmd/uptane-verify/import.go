/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kentakayama/uptane-trust/internal/domain/model"
	"github.com/kentakayama/uptane-trust/internal/tuf"
)

var errEmptyRepository = errors.New("no repository found")

func importCmd(a *app) *cobra.Command {
	var (
		ecus    []string
		primary string
	)
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Load published repositories into the store",
		Long: `Load <dir>/director and <dir>/repo into the store. Each holds metadata
files such as 2.root.json at its top level and target content under targets/.
`,
		Example: `uptane-verify import ./vectors/001 --ecu CA:FE:A6:D2:84:9D=ecu-model-1 --primary CA:FE:A6:D2:84:9D`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			parsed, err := parseEcus(ecus, primary)
			if err != nil {
				return err
			}

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			imported := 0
			for _, repo := range []tuf.RepoKind{tuf.RepoDirector, tuf.RepoImage} {
				dir := filepath.Join(args[0], repo.Dir())
				files, contents, err := readRepoDir(dir)
				if errors.Is(err, fs.ErrNotExist) {
					a.logger.Debugf("skip %s: %v", dir, err)
					continue
				}
				if err != nil {
					return err
				}
				for _, w := range checkHeaders(files) {
					a.logger.WithField("repo", repo.String()).Warn(w)
				}
				if err := store.Import(ctx, repo, files, contents); err != nil {
					return err
				}
				a.logger.WithField("repo", repo.String()).Infof("imported %d metadata files and %d targets", len(files), len(contents))
				imported++
			}
			if imported == 0 && len(parsed) == 0 {
				return fmt.Errorf("%s: %w", args[0], errEmptyRepository)
			}

			for _, e := range parsed {
				if _, err := store.Ecus.Create(ctx, e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&ecus, "ecu", nil, "register an ECU as SERIAL=HARDWARE_ID (repeatable)")
	cmd.Flags().StringVar(&primary, "primary", "", "serial of the primary ECU")
	return cmd
}

func parseEcus(specs []string, primary string) ([]*model.Ecu, error) {
	now := time.Now().UTC()
	out := make([]*model.Ecu, 0, len(specs))
	for _, s := range specs {
		serial, hwid, ok := strings.Cut(s, "=")
		if !ok || serial == "" || hwid == "" {
			return nil, fmt.Errorf("--ecu %q: want SERIAL=HARDWARE_ID", s)
		}
		out = append(out, &model.Ecu{
			Serial:     serial,
			HardwareID: hwid,
			Primary:    serial == primary,
			CreatedAt:  now,
		})
	}
	return out, nil
}

// checkHeaders describes each metadata file whose unverified header does
// not match its file name. Such files are still imported; verification
// decides what they are worth.
func checkHeaders(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		want, version, err := tuf.ParseRoleFileName(name)
		if err != nil {
			out = append(out, err.Error())
			continue
		}
		role, hdr, err := tuf.PeekHeader(files[name])
		switch {
		case err != nil:
			out = append(out, fmt.Sprintf("%s: unreadable header: %v", name, err))
		case role != want:
			out = append(out, fmt.Sprintf("%s: holds %s metadata", name, role))
		case version > 0 && hdr.Version != version:
			out = append(out, fmt.Sprintf("%s: declares version %d", name, hdr.Version))
		}
	}
	return out
}

// readRepoDir collects the metadata files at the top of dir and the
// content under dir/targets, keyed by slash separated target path.
func readRepoDir(dir string) (files, contents map[string][]byte, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	files = map[string][]byte{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, nil, err
		}
		files[e.Name()] = raw
	}

	contents = map[string][]byte{}
	root := filepath.Join(dir, "targets")
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		contents[filepath.ToSlash(rel)] = b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return files, contents, nil
}
