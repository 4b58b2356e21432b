/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kentakayama/uptane-trust/internal/config"
	"github.com/kentakayama/uptane-trust/internal/infra/sqlite"
	"github.com/kentakayama/uptane-trust/internal/server"
	"github.com/kentakayama/uptane-trust/internal/tuf"
	"github.com/kentakayama/uptane-trust/internal/tuf/tuftest"
)

var ecuFlag = tuftest.DefaultECUSerial + "=" + tuftest.DefaultHardwareID

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func generate(t *testing.T, vectors string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "vectors")
	_, err := run(t, "generate", dir, "--vector", vectors)
	require.NoError(t, err)
	return dir
}

func TestGenerate(t *testing.T) {
	dir := generate(t, "001,004,003")

	raw, err := os.ReadFile(filepath.Join(dir, vectorIndexFile))
	require.NoError(t, err)
	var index []vectorEntry
	require.NoError(t, yaml.Unmarshal(raw, &index))
	require.Len(t, index, 3)
	assert.Equal(t, vectorEntry{Name: "001", Description: index[0].Description, Director: true, Image: true}, index[0])
	assert.False(t, index[1].Director)
	assert.Equal(t, "metadata", index[1].Stage)
	assert.Equal(t, tuf.KindTargetHashMismatch.String(), index[2].Expect)
	assert.Equal(t, "content", index[2].Stage)

	assert.FileExists(t, filepath.Join(dir, "001", "director", "1.root.json"))
	assert.FileExists(t, filepath.Join(dir, "001", "repo", "timestamp.json"))
	assert.FileExists(t, filepath.Join(dir, "001", "repo", "targets", tuftest.DefaultTargetPath))
	assert.NoDirExists(t, filepath.Join(dir, "004", "director"))

	_, err = run(t, "generate", dir, "--vector", "999")
	assert.Error(t, err)
}

func TestGenerate_Singles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vectors")
	_, err := run(t, "generate", dir, "--vector", "001", "--singles")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "singles", "root-rotation", "repo", "2.root.json"))
}

func TestIndexEntry(t *testing.T) {
	for _, v := range tuftest.Vectors() {
		_, err := indexEntry(v)
		assert.NoError(t, err, v.Name)
	}

	_, err := indexEntry(tuftest.Vector{Name: "x", Expect: "UnmetThreshold::Mirrors"})
	assert.Error(t, err)
	_, err = indexEntry(tuftest.Vector{Name: "x", Expect: "Nope"})
	assert.Error(t, err)
}

func TestCheckHeaders(t *testing.T) {
	r, err := tuftest.Build(tuf.RepoImage, tuftest.ValidEd25519())
	require.NoError(t, err)
	assert.Empty(t, checkHeaders(r.Files))

	files := map[string][]byte{
		"timestamp.json": r.Files["snapshot.json"],
		"3.root.json":    r.Files["1.root.json"],
		"targets.json":   []byte("{"),
		"mirrors.json":   r.Files["root.json"],
	}
	warnings := checkHeaders(files)
	require.Len(t, warnings, 4)
	assert.Contains(t, warnings[0], "declares version 1")
	assert.Contains(t, warnings[1], "unknown role")
	assert.Contains(t, warnings[2], "unreadable header")
	assert.Contains(t, warnings[3], "holds Snapshot metadata")
}

func TestImportVerifyReports(t *testing.T) {
	dir := generate(t, "001")
	db := filepath.Join(t.TempDir(), "store.db")
	out := filepath.Join(t.TempDir(), "payload.bin")

	_, err := run(t, "--db", db, "import", filepath.Join(dir, "001"), "--ecu", ecuFlag, "--primary", tuftest.DefaultECUSerial)
	require.NoError(t, err)

	// the hardware id comes from the registered ECU
	stdout, err := run(t, "--db", db, "verify", "--local",
		"--ecu", tuftest.DefaultECUSerial,
		"--at", tuftest.Now.Format(time.RFC3339),
		"-o", out)
	require.NoError(t, err)

	var res verifyResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, tuftest.DefaultTargetPath, res.Path)
	assert.Equal(t, int64(len(tuftest.DefaultTargetContent)), res.Length)
	assert.NotEmpty(t, res.Session)

	payload, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, tuftest.DefaultTargetContent, payload)

	stdout, err = run(t, "--db", db, "reports", tuftest.DefaultECUSerial)
	require.NoError(t, err)
	assert.Contains(t, stdout, res.Session)
	assert.Contains(t, stdout, "accepted")

	stdout, err = run(t, "--db", db, "reports", "--session", res.Session, "--detail")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"repos"`)
	assert.Contains(t, stdout, `"director"`)

	_, err = run(t, "--db", db, "reports")
	assert.Error(t, err)
	_, err = run(t, "--db", db, "reports", "--session", "no-such-session")
	assert.Error(t, err)
}

func TestVerify_Rejected(t *testing.T) {
	dir := generate(t, "003")
	db := filepath.Join(t.TempDir(), "store.db")
	_, err := run(t, "--db", db, "import", filepath.Join(dir, "003"))
	require.NoError(t, err)

	_, err = run(t, "--db", db, "verify", "--local",
		"--ecu", tuftest.DefaultECUSerial,
		"--hardware-id", tuftest.DefaultHardwareID,
		"--at", tuftest.Now.Format(time.RFC3339))
	require.Error(t, err)
	assert.Equal(t, tuf.KindTargetHashMismatch.String(), tuf.CodeOf(err))

	// content failures surface after the update was authorized
	stdout, err := run(t, "--db", db, "reports", tuftest.DefaultECUSerial)
	require.NoError(t, err)
	assert.Contains(t, stdout, "accepted")
}

func TestVerify_MissingRepository(t *testing.T) {
	db := filepath.Join(t.TempDir(), "store.db")
	_, err := run(t, "--db", db, "verify", "--ecu", tuftest.DefaultECUSerial)
	require.Error(t, err)
	assert.Equal(t, (&tuf.TrustError{Kind: tuf.KindMissingRepo, Repo: tuf.RepoDirector}).Code(), tuf.CodeOf(err))
}

func TestVerify_OverHTTP(t *testing.T) {
	dir := generate(t, "001")
	db := filepath.Join(t.TempDir(), "store.db")
	_, err := run(t, "--db", db, "import", filepath.Join(dir, "001"))
	require.NoError(t, err)

	sdb, err := sqlite.InitDB(context.Background(), db)
	require.NoError(t, err)
	defer sqlite.CloseDB(sdb)
	store := sqlite.NewStore(sdb)
	logger, _ := test.NewNullLogger()
	srv, err := server.New(config.ServerConfig{Logger: logger}, server.Repositories{
		Metadata: store.Metadata,
		Targets:  store.Targets,
	}, prometheus.NewRegistry())
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()

	pinned := filepath.Join(dir, "001", "director", "1.root.json")
	stdout, err := run(t, "--db", filepath.Join(t.TempDir(), "reports.db"), "verify",
		"--ecu", tuftest.DefaultECUSerial,
		"--hardware-id", tuftest.DefaultHardwareID,
		"--director", hs.URL+"/director",
		"--image", hs.URL+"/repo",
		"--director-root", pinned,
		"--at", tuftest.Now.Format(time.RFC3339))
	require.NoError(t, err)
	assert.Contains(t, stdout, tuftest.DefaultTargetPath)
}

func TestImport_Errors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "store.db")
	_, err := run(t, "--db", db, "import", t.TempDir())
	assert.ErrorIs(t, err, errEmptyRepository)

	_, err = run(t, "--db", db, "import", t.TempDir(), "--ecu", "no-hardware-id")
	assert.Error(t, err)
}

func TestRoot_BadConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "reports", "x")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = run(t, "--log-level", "chatty", "reports", "x")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
