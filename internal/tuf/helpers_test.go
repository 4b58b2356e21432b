/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kentakayama/uptane-trust/internal/tuf"
	"github.com/kentakayama/uptane-trust/internal/tuf/tuftest"
)

func jsonBytes(v any) ([]byte, error) {
	return json.Marshal(v)
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func options(repo tuf.RepoKind) tuf.Options {
	return tuf.Options{Repo: repo, Now: tuftest.Now, Logger: quietLogger()}
}

func verify(t *testing.T, r *tuftest.Repository) (*tuf.VerifiedBundle, *tuftest.MemoryFetcher, error) {
	t.Helper()
	f := tuftest.NewMemoryFetcher(r)
	b, err := tuf.VerifyRepository(context.Background(), f, options(r.Kind))
	return b, f, err
}
