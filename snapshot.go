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

// Tarit | Snapshot engine
//
// Wraps GNU tar --listed-incremental as the archive tool. One capture
// produces two blobs: the incremental archive with the delta against the
// parent commit, and the snapshot-state file tar needs to compute the next
// delta. Both are written to temporaries beside their target location and
// renamed into commits/ only on clean tar exit (atomic publish); a capture
// that is not published leaves no trace.
//
// NOTE tar mutates the listed-incremental file in place, so capture always
// works on a copy of the parent's snapshot-state - stored blobs stay
// immutable.
package main

import (
    "fmt"
    "os"
    "path/filepath"
    "strings"
)

// not yet published capture result
type Capture struct {
    archive string   // temp path of archive blob
    state   string   // temp path of snapshot-state blob
    touched []string // paths the archive tool reported as changed
}

// snapshot the working tree against parent's state -> capture
// parent null -> level-0 snapshot (root commit). The working tree is read
// but not modified.
func (s *Store) capture(parent Sha1) *Capture {
    tmparchive := filepath.Join(s.ctl, "commits", fmt.Sprintf("tmp%d.archive", os.Getpid()))
    tmpstate := filepath.Join(s.ctl, "commits", fmt.Sprintf("tmp%d.snapstate", os.Getpid()))

    // tar rewrites the state file in place -> give it a copy of parent's state;
    // no state file at all = level-0
    os.Remove(tmpstate)
    if !parent.IsNull() {
        err := copyfile(s.snapstatepath(parent), tmpstate)
        if err != nil {
            raise(&CorruptHistory{parent, err})
        }
    }

    c := &Capture{archive: tmparchive, state: tmpstate}
    terr, stdout, _ := s.ttar([]string{
        "--listed-incremental=" + tmpstate,
        "-cvf", tmparchive,
        "--exclude=./" + controlDir,
        "-C", s.root, ".",
    }, RunWith{stderr: tarprogress()})
    if terr != nil {
        c.discard()
        raise(&SnapshotToolFailed{terr})
    }

    c.touched = memberpaths(stdout)
    return c
}

// move captured blobs into place as blobs of commit id
// On any failure both blobs are removed - a commit record is never written
// for a partially published capture.
func (c *Capture) publish(s *Store, id Sha1) {
    err := os.Rename(c.archive, s.archivepath(id))
    if err == nil {
        err = os.Rename(c.state, s.snapstatepath(id))
        if err != nil {
            os.Remove(s.archivepath(id))
        }
    }
    if err != nil {
        c.discard()
        raise(err)
    }
}

// drop capture temporaries
func (c *Capture) discard() {
    os.Remove(c.archive)
    os.Remove(c.state)
}

// extract archive blob of commit id into the tracked root, overwriting
// files and replaying removals the archive recorded. No parent replay is
// done here - reconstructing a full state is the caller's job (see
// checkouttree).
func (s *Store) extract(id Sha1) {
    s.xtar([]string{
        "--incremental",
        "-xf", s.archivepath(id),
        "-C", s.root,
    }, RunWith{stderr: tarprogress()})
}

// paths touched by archive blob of commit id; the filesystem is not modified
func (s *Store) listpaths(id Sha1) []string {
    stdout := s.xtar([]string{
        "--incremental",
        "-tf", s.archivepath(id),
    }, RunWith{})
    return memberpaths(stdout)
}

// tar member listing -> touched paths
// Directory members are bookkeeping entries of the incremental format (tar
// records every directory on every level) - the user-visible change unit is
// non-directory members only.
func memberpaths(listing string) []string {
    pathv := []string{}
    for _, member := range splitlines(listing, "\n") {
        if member == "" || strings.HasSuffix(member, "/") {
            continue
        }
        path := strings.TrimPrefix(member, "./")
        if path == "" {
            continue
        }
        pathv = append(pathv, path)
    }
    return pathv
}
