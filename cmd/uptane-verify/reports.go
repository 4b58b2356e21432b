/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kentakayama/uptane-trust/internal/domain/model"
	"github.com/kentakayama/uptane-trust/internal/util"
)

func reportsCmd(a *app) *cobra.Command {
	var (
		limit   int
		session string
		detail  bool
	)
	cmd := &cobra.Command{
		Use:   "reports [ecu-serial]",
		Short: "List recorded verification sessions",
		Example: `uptane-verify reports CA:FE:A6:D2:84:9D --limit 5
uptane-verify reports --session 5f0c... --detail`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (session == "") {
				return fmt.Errorf("give either an ECU serial or --session")
			}
			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			var reports []*model.VerificationReport
			if session != "" {
				r, err := store.Reports.FindBySession(ctx, session)
				if err != nil {
					return err
				}
				if r == nil {
					return fmt.Errorf("no report for session %s", session)
				}
				reports = append(reports, r)
			} else {
				reports, err = store.Reports.ListByEcu(ctx, args[0], limit)
				if err != nil {
					return err
				}
			}
			return printReports(cmd.OutOrStdout(), reports, detail)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of reports, newest first")
	cmd.Flags().StringVar(&session, "session", "", "show the report of one session")
	cmd.Flags().BoolVar(&detail, "detail", false, "print the per-repository detail of each report")
	return cmd
}

func printReports(w io.Writer, reports []*model.VerificationReport, detail bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSESSION\tECU\tRESULT\tTARGET")
	for _, r := range reports {
		result := "accepted"
		if !r.Accepted {
			result = r.Code
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.CreatedAt.Format(time.RFC3339), r.Session, r.EcuSerial, result, r.TargetPath)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !detail {
		return nil
	}

	for _, r := range reports {
		pretty, err := util.PrettyCBOR(r.Detail)
		if err != nil {
			return fmt.Errorf("session %s: %w", r.Session, err)
		}
		fmt.Fprintf(w, "\n%s\n%s\n", r.Session, pretty)
		if r.Message != "" {
			fmt.Fprintf(w, "message: %s\n", r.Message)
		}
	}
	return nil
}
