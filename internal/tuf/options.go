/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxRootRotations = 256

	defaultMetadataLimit     = 64 << 10
	defaultImageTargetsLimit = 8 << 20
)

// Limits caps the size of every fetched document.
type Limits struct {
	Root      int64
	Timestamp int64
	Snapshot  int64
	Targets   int64
}

// DefaultLimits returns the limits for a repository kind. Image targets
// metadata lists every published image and is allowed to be larger.
func DefaultLimits(repo RepoKind) Limits {
	l := Limits{
		Root:      defaultMetadataLimit,
		Timestamp: defaultMetadataLimit,
		Snapshot:  defaultMetadataLimit,
		Targets:   defaultMetadataLimit,
	}
	if repo == RepoImage {
		l.Targets = defaultImageTargetsLimit
	}
	return l
}

func (l Limits) For(role Role) int64 {
	switch role {
	case RoleRoot:
		return l.Root
	case RoleTimestamp:
		return l.Timestamp
	case RoleSnapshot:
		return l.Snapshot
	case RoleTargets:
		return l.Targets
	}
	return defaultMetadataLimit
}

func (l Limits) withDefaults(repo RepoKind) Limits {
	d := DefaultLimits(repo)
	if l.Root <= 0 {
		l.Root = d.Root
	}
	if l.Timestamp <= 0 {
		l.Timestamp = d.Timestamp
	}
	if l.Snapshot <= 0 {
		l.Snapshot = d.Snapshot
	}
	if l.Targets <= 0 {
		l.Targets = d.Targets
	}
	return l
}

// Options configures one verification session of one repository.
type Options struct {
	Repo RepoKind
	// TrustedRoot, when set, is a previously trusted root document the chain
	// starts from instead of 1.root.json.
	TrustedRoot []byte

	// Now is the instant expiry is evaluated at. When zero, Clock is used.
	Now   time.Time
	Clock clockwork.Clock

	Encoding          Encoding
	SignatureEncoding SignatureEncoding
	MaxRootRotations  int
	Limits            Limits

	Logger logrus.FieldLogger
}

func (o Options) now() time.Time {
	if !o.Now.IsZero() {
		return o.Now
	}
	if o.Clock != nil {
		return o.Clock.Now()
	}
	return clockwork.NewRealClock().Now()
}

func (o Options) parse() ParseOptions {
	return ParseOptions{Encoding: o.Encoding, SignatureEncoding: o.SignatureEncoding}
}

func (o Options) maxRootRotations() int {
	if o.MaxRootRotations > 0 {
		return o.MaxRootRotations
	}
	return DefaultMaxRootRotations
}

func (o Options) logger() logrus.FieldLogger {
	l := o.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	return l.WithField("repo", o.Repo.String())
}
