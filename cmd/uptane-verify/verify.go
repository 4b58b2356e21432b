/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kentakayama/uptane-trust/internal/config"
	"github.com/kentakayama/uptane-trust/internal/infra/remote"
	"github.com/kentakayama/uptane-trust/internal/infra/sqlite"
	"github.com/kentakayama/uptane-trust/internal/tuf"
	"github.com/kentakayama/uptane-trust/internal/uptane"
)

type verifyOptions struct {
	ecu          uptane.ECU
	directorURL  string
	imageURL     string
	directorRoot string
	imageRoot    string
	output       string
	at           string
	local        bool
}

type verifyResult struct {
	Session string     `json:"session"`
	Ecu     string     `json:"ecu"`
	Path    string     `json:"path"`
	Length  int64      `json:"length"`
	Hashes  tuf.Hashes `json:"hashes"`
	URI     string     `json:"uri,omitempty"`
	Output  string     `json:"output,omitempty"`
}

func verifyCmd(a *app) *cobra.Command {
	var o verifyOptions
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the update the Director assigns to an ECU",
		Long: `Verify both repositories, reconcile the Director's target for the ECU
with the Image repository and check the downloaded payload.
`,
		Example: `uptane-verify verify --ecu CA:FE:A6:D2:84:9D --director http://localhost:8080/director --image http://localhost:8080/repo`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("director") {
				a.cfg.Director.BaseURL = o.directorURL
			}
			if cmd.Flags().Changed("image") {
				a.cfg.Image.BaseURL = o.imageURL
			}
			return a.verify(cmd, o)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&o.ecu.Serial, "ecu", "", "ECU serial the update is for")
	flags.StringVar(&o.ecu.HardwareID, "hardware-id", "", "ECU hardware identifier (defaults to the registered one)")
	flags.StringVar(&o.ecu.Path, "path", "", "only consider this Director target")
	flags.StringVar(&o.directorURL, "director", "", "Director repository URL (overrides director.base_url)")
	flags.StringVar(&o.imageURL, "image", "", "Image repository URL (overrides image.base_url)")
	flags.StringVar(&o.directorRoot, "director-root", "", "pinned Director root metadata file")
	flags.StringVar(&o.imageRoot, "image-root", "", "pinned Image root metadata file")
	flags.StringVarP(&o.output, "output", "o", "", "write the verified payload to this file")
	flags.StringVar(&o.at, "at", "", "verify as of this RFC 3339 time instead of now")
	flags.BoolVar(&o.local, "local", false, "read both repositories from the store instead of over HTTP")
	_ = cmd.MarkFlagRequired("ecu")
	return cmd
}

func (a *app) verify(cmd *cobra.Command, o verifyOptions) error {
	ctx := cmd.Context()
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if o.ecu.HardwareID == "" {
		e, err := store.Ecus.FindBySerial(ctx, o.ecu.Serial)
		if err != nil {
			return err
		}
		if e != nil {
			o.ecu.HardwareID = e.HardwareID
		}
	}

	v, err := uptane.NewVerifier(a.cfg.Verifier, store.Reports)
	if err != nil {
		return err
	}
	for repo, path := range map[tuf.RepoKind]string{tuf.RepoDirector: o.directorRoot, tuf.RepoImage: o.imageRoot} {
		if path == "" {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("pinned %s root: %w", repo, err)
		}
		v.SetTrustedRoot(repo, raw)
	}

	var now time.Time
	if o.at != "" {
		if now, err = time.Parse(time.RFC3339, o.at); err != nil {
			return fmt.Errorf("--at: %w", err)
		}
	}

	director, image, err := a.fetchers(store, o.local)
	if err != nil {
		return err
	}

	session, at, err := v.VerifyUpdateSession(ctx, o.ecu, director, image, now)
	if err != nil {
		return err
	}
	content, err := v.Fetch(ctx, at, image)
	if err != nil {
		return err
	}
	if o.output != "" {
		if err := os.WriteFile(o.output, content, 0o644); err != nil {
			return err
		}
	}

	out, err := json.MarshalIndent(verifyResult{
		Session: session,
		Ecu:     at.ECU.Serial,
		Path:    at.Path,
		Length:  at.Length,
		Hashes:  at.Hashes,
		URI:     at.URI,
		Output:  o.output,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// fetchers returns the repository fetchers. A repository without a base
// URL is left nil and reported missing by the verifier.
func (a *app) fetchers(store *sqlite.Store, local bool) (director, image tuf.Fetcher, err error) {
	if local {
		return store.Fetcher(tuf.RepoDirector), store.Fetcher(tuf.RepoImage), nil
	}
	remotes := map[tuf.RepoKind]config.RemoteConfig{tuf.RepoDirector: a.cfg.Director, tuf.RepoImage: a.cfg.Image}
	out := map[tuf.RepoKind]tuf.Fetcher{}
	for repo, rc := range remotes {
		f, err := remote.NewHTTPFetcher(rc)
		if errors.Is(err, remote.ErrNotConfigured) {
			a.logger.Warnf("%s repository is not configured", repo)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s repository: %w", repo, err)
		}
		out[repo] = f
	}
	return out[tuf.RepoDirector], out[tuf.RepoImage], nil
}
