/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package tuf

import (
	"fmt"
	"strconv"
	"strings"
)

// Role names one of the four top-level metadata documents.
type Role int

const (
	RoleRoot Role = iota + 1
	RoleTargets
	RoleSnapshot
	RoleTimestamp
)

// TopLevelRoles lists the roles in the order they are declared in root.
var TopLevelRoles = []Role{RoleRoot, RoleTargets, RoleSnapshot, RoleTimestamp}

func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "Root"
	case RoleTargets:
		return "Targets"
	case RoleSnapshot:
		return "Snapshot"
	case RoleTimestamp:
		return "Timestamp"
	}
	return ""
}

// Name is the lowercase role name used as a key in root's "roles" object.
func (r Role) Name() string {
	return strings.ToLower(r.String())
}

// File returns the file name of the role's metadata, e.g. "snapshot.json".
func (r Role) File() string {
	return r.Name() + ".json"
}

// ParseRole accepts "Root", "root", "ROOT" and so on.
func ParseRole(s string) (Role, error) {
	for _, r := range TopLevelRoles {
		if strings.EqualFold(s, r.String()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// RoleFileName returns the name under which a role is published. Version 0
// denotes the latest copy; a positive version is only meaningful for root.
func RoleFileName(role Role, version int) string {
	if version > 0 {
		return fmt.Sprintf("%d.%s", version, role.File())
	}
	return role.File()
}

// ParseRoleFileName is the inverse of RoleFileName.
func ParseRoleFileName(name string) (Role, int, error) {
	base, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return 0, 0, fmt.Errorf("%q is not a metadata file", name)
	}
	version := 0
	if prefix, rest, found := strings.Cut(base, "."); found {
		v, err := strconv.Atoi(prefix)
		if err != nil || v < 1 {
			return 0, 0, fmt.Errorf("%q has an invalid version prefix", name)
		}
		version, base = v, rest
	}
	role, err := ParseRole(base)
	if err != nil {
		return 0, 0, err
	}
	if role.Name() != base {
		return 0, 0, fmt.Errorf("%q is not a metadata file", name)
	}
	return role, version, nil
}

// RepoKind identifies the repository a document came from.
type RepoKind int

const (
	RepoDirector RepoKind = iota + 1
	RepoImage
)

func (k RepoKind) String() string {
	switch k {
	case RepoDirector:
		return "director"
	case RepoImage:
		return "image"
	}
	return "unknown"
}

// Suffix is the repository name as it appears in error codes.
func (k RepoKind) Suffix() string {
	switch k {
	case RepoDirector:
		return "Director"
	case RepoImage:
		return "Repo"
	}
	return "Unknown"
}

// Dir is the path segment under which the repository is served.
func (k RepoKind) Dir() string {
	switch k {
	case RepoDirector:
		return "director"
	case RepoImage:
		return "repo"
	}
	return ""
}

// ParseRepoKind accepts "director", "image" and "repo".
func ParseRepoKind(s string) (RepoKind, error) {
	switch strings.ToLower(s) {
	case "director":
		return RepoDirector, nil
	case "image", "repo":
		return RepoImage, nil
	}
	return 0, fmt.Errorf("unknown repository %q", s)
}
