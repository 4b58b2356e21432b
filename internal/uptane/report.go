/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package uptane

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/kentakayama/uptane-trust/internal/domain/model"
	"github.com/kentakayama/uptane-trust/internal/tuf"
)

// ReportDetail is the CBOR encoded detail of a verification report.
type ReportDetail struct {
	Now   int64        `cbor:"now"`
	Repos []RepoDetail `cbor:"repos"`
	// Errors lists every failure of the session, the reported one included.
	Errors []string `cbor:"errors,omitempty"`
}

// RepoDetail summarizes the verification of one repository.
type RepoDetail struct {
	Repo           string `cbor:"repo"`
	Code           string `cbor:"code,omitempty"`
	RootVersion    int    `cbor:"root_version,omitempty"`
	TargetsVersion int    `cbor:"targets_version,omitempty"`
}

// DecodeReportDetail parses the detail blob of a stored report.
func DecodeReportDetail(b []byte) (*ReportDetail, error) {
	var d ReportDetail
	if err := cbor.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func codeLabel(err error) string {
	if err == nil {
		return ""
	}
	if code := tuf.CodeOf(err); code != "" {
		return code
	}
	return "Internal"
}

// combined joins every failure of s. The reported one comes first.
func (s *session) combined() *multierror.Error {
	var merr *multierror.Error
	if s.err != nil {
		merr = multierror.Append(merr, s.err)
	}
	for _, err := range s.repoErrs {
		if err != nil && err != s.err {
			merr = multierror.Append(merr, err)
		}
	}
	return merr
}

func (s *session) detail() ReportDetail {
	d := ReportDetail{Now: s.now.Unix()}
	for i, repo := range repos {
		rd := RepoDetail{Repo: repo.String(), Code: codeLabel(s.repoErrs[i])}
		if b := s.bundles[i]; b != nil {
			rd.RootVersion = b.Trust.Version()
			rd.TargetsVersion = b.Targets.Version
		}
		d.Repos = append(d.Repos, rd)
	}
	if merr := s.combined(); merr != nil {
		for _, err := range merr.Errors {
			d.Errors = append(d.Errors, err.Error())
		}
	}
	return d
}

func (s *session) report(createdAt time.Time) (*model.VerificationReport, error) {
	detail, err := cbor.Marshal(s.detail())
	if err != nil {
		return nil, err
	}
	r := &model.VerificationReport{
		Session:   s.id,
		EcuSerial: s.ecu.Serial,
		Accepted:  s.err == nil,
		Code:      codeLabel(s.err),
		Detail:    detail,
		CreatedAt: createdAt.UTC(),
	}
	if s.err != nil {
		r.Message = s.err.Error()
	}
	if s.target != nil {
		r.TargetPath = s.target.Path
	}
	return r, nil
}

// record persists the report of s. A storage failure is logged and does
// not change the outcome.
func (v *Verifier) record(ctx context.Context, logger logrus.FieldLogger, s *session) {
	if v.reports == nil {
		return
	}
	r, err := s.report(v.clock.Now())
	if err == nil {
		_, err = v.reports.Create(ctx, r)
	}
	if err != nil {
		logger.WithError(err).Error("failed to store verification report")
	}
}
