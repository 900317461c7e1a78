// Copyright (C) 2017-2021  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

// Tarit | Reference resolver
package main

import (
    "fmt"
)

type UnknownRef struct {
    ref string
}

func (e *UnknownRef) Error() string {
    return fmt.Sprintf("unknown ref %q", e.ref)
}

type AmbiguousRef struct {
    ref     string
    matchv  []Sha1
}

func (e *AmbiguousRef) Error() string {
    msg := fmt.Sprintf("ambiguous ref %q; candidates:", e.ref)
    for _, id := range e.matchv {
        msg += "\n\t- " + id.String()
    }
    return msg
}

type MissingRef struct{}

func (e *MissingRef) Error() string {
    return "missing ref argument"
}

// resolved reference
type Resolved struct {
    id     Sha1
    branch string // != "" if the ref named a branch
}

// user-supplied string -> commit id
//
// Resolution order: exact branch name, then full 40-hex id, then unique hex
// prefix (>= 4 digits). The token HEAD is a synonym for the current HEAD
// target and keeps its pointer form. A string that resolves nowhere fails
// UnknownBranch if it is grammatically a branch name, UnknownRef otherwise.
func (s *Store) resolve(ref string) Resolved {
    if ref == "HEAD" {
        head := s.readHEAD()
        return Resolved{id: s.xheadcommit(), branch: head.branch}
    }

    if id, ok := s.readbranch(ref); ok {
        return Resolved{id: id, branch: ref}
    }

    if ishex(ref) && len(ref) == 2*SHA1_RAWSIZE {
        if id, err := Sha1Parse(ref); err == nil && s.havecommit(id) {
            return Resolved{id: id}
        }
    }

    if ishex(ref) && len(ref) >= 4 && len(ref) <= 2*SHA1_RAWSIZE {
        matchv := []Sha1{}
        for _, id := range s.commitids() {
            if id.HasHexPrefix(ref) {
                matchv = append(matchv, id)
            }
        }
        switch {
        case len(matchv) == 1:
            return Resolved{id: matchv[0]}
        case len(matchv) > 1:
            raise(&AmbiguousRef{ref, matchv})
        }
    }

    // hex-shaped strings that matched no commit are bad ids, not bad branch names
    if !ishex(ref) && branchNameRe.MatchString(ref) {
        raise(&UnknownBranch{ref})
    }
    raise(&UnknownRef{ref})
    panic(0)
}
