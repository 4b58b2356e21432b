/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kentakayama/uptane-trust/internal/tuf"
	"github.com/kentakayama/uptane-trust/internal/tuf/tuftest"
)

const vectorIndexFile = "vectors.yaml"

// vectorEntry is one line of the generated index.
type vectorEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Director    bool   `yaml:"director"`
	Image       bool   `yaml:"image"`
	Expect      string `yaml:"expect,omitempty"`
	Stage       string `yaml:"stage,omitempty"`
}

func generateCmd(a *app) *cobra.Command {
	var (
		names   []string
		singles bool
	)
	cmd := &cobra.Command{
		Use:   "generate <dir>",
		Short: "Write the test vector repositories",
		Long: `Write every test vector as <dir>/<name>/director and <dir>/<name>/repo,
in the layout import reads, and index them in <dir>/vectors.yaml.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vectors, err := selectVectors(names)
			if err != nil {
				return err
			}
			out := args[0]

			index := make([]vectorEntry, 0, len(vectors))
			for _, v := range vectors {
				built, err := v.Build()
				if err != nil {
					return err
				}
				for _, r := range []*tuftest.Repository{built.Director, built.Image} {
					if r == nil {
						continue
					}
					if err := writeRepository(filepath.Join(out, v.Name, r.Kind.Dir()), r); err != nil {
						return err
					}
				}
				e, err := indexEntry(v)
				if err != nil {
					return err
				}
				index = append(index, e)
				a.logger.Debugf("generated vector %s", v.Name)
			}

			if singles {
				if err := writeSingles(filepath.Join(out, "singles")); err != nil {
					return err
				}
			}

			raw, err := yaml.Marshal(index)
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(out, vectorIndexFile), raw, 0o644); err != nil {
				return err
			}
			a.logger.Infof("wrote %d vectors to %s", len(index), out)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&names, "vector", nil, "only generate these vectors")
	cmd.Flags().BoolVar(&singles, "singles", false, "also write the single repository vectors under <dir>/singles")
	return cmd
}

func selectVectors(names []string) ([]tuftest.Vector, error) {
	if len(names) == 0 {
		return tuftest.Vectors(), nil
	}
	out := make([]tuftest.Vector, 0, len(names))
	for _, n := range names {
		v, ok := tuftest.VectorByName(n)
		if !ok {
			return nil, fmt.Errorf("unknown vector %q", n)
		}
		out = append(out, v)
	}
	return out, nil
}

// indexEntry fails on an expected code that names no error, so the index
// only carries codes a verifier can return.
func indexEntry(v tuftest.Vector) (vectorEntry, error) {
	if !v.Success() {
		if _, err := tuf.ParseCode(v.Expect); err != nil {
			return vectorEntry{}, fmt.Errorf("vector %s: %w", v.Name, err)
		}
	}
	e := vectorEntry{
		Name:        v.Name,
		Description: v.Description,
		Director:    v.Director != nil,
		Image:       v.Image != nil,
		Expect:      v.Expect,
	}
	if !v.Success() {
		e.Stage = "metadata"
		if v.Stage == tuftest.StageContent {
			e.Stage = "content"
		}
	}
	return e, nil
}

func writeSingles(dir string) error {
	specs := tuftest.Singles()
	names := make([]string, 0, len(specs))
	for n := range specs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		r, err := tuftest.Build(tuf.RepoImage, specs[n])
		if err != nil {
			return fmt.Errorf("single %s: %w", n, err)
		}
		if err := writeRepository(filepath.Join(dir, n, r.Kind.Dir()), r); err != nil {
			return err
		}
	}
	return nil
}

// writeRepository lays r out the way readRepoDir expects, public keys
// under keys/.
func writeRepository(dir string, r *tuftest.Repository) error {
	write := func(path string, b []byte) error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, b, 0o644)
	}
	for name, raw := range r.Files {
		if err := write(filepath.Join(dir, name), raw); err != nil {
			return err
		}
	}
	for path, content := range r.Contents {
		if err := write(filepath.Join(dir, "targets", filepath.FromSlash(path)), content); err != nil {
			return err
		}
	}
	for name, pub := range r.PublicKeys {
		if err := write(filepath.Join(dir, "keys", name), []byte(pub)); err != nil {
			return err
		}
	}
	return nil
}
