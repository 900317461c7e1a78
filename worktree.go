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

// Tarit | Working-tree controller
//
// A working tree is dirty when capturing it against the current HEAD commit
// would produce a non-empty touched-paths list; status is exactly this
// probe. Destructive operations require a clean tree or an explicit force
// flag. Reconstruction of a historical state clears the tree and replays
// the target's archive chain from the root commit up.
package main

import (
    "fmt"
    "os"
    "path/filepath"
)

type DirtyWorkingTree struct {
    pathv []string
}

func (e *DirtyWorkingTree) Error() string {
    msg := "working tree has uncommitted changes:"
    for _, path := range e.pathv {
        msg += "\n\t- " + path
    }
    msg += "\nuse -f to discard, or commit first"
    return msg
}

// paths changed since the current commit; empty = clean
//
// NOTE right after checkout/reset --hard the probe can report paths that
// did not really change - extraction invalidates the snapshot-state the
// probe captures against. Committing once brings it back to normal.
func (s *Store) dirtypaths() []string {
    parent := Sha1{}
    if id, ok := s.headcommit(); ok {
        parent = id
    }
    snap := s.capture(parent)
    snap.discard()
    return snap.touched
}

// raise DirtyWorkingTree unless tree is clean or force
func (s *Store) gatedirty(force bool) {
    if force {
        return
    }
    if pathv := s.dirtypaths(); len(pathv) != 0 {
        raise(&DirtyWorkingTree{pathv})
    }
}

// remove everything in the tracked root except the control directory
func (s *Store) cleartree() {
    dentryv, err := os.ReadDir(s.root)
    raiseif(err)
    keep := StrSet{controlDir: {}}
    for _, dentry := range dentryv {
        if keep.Contains(dentry.Name()) {
            continue
        }
        err = os.RemoveAll(filepath.Join(s.root, dentry.Name()))
        raiseif(err)
    }
}

// reconstruct working tree as of commit id: clear + replay archive chain
// root..id in order. Emits one info event per extraction.
func (s *Store) checkouttree(r Reporter, id Sha1) {
    chain := s.ancestors(id)
    s.cleartree()
    for _, cid := range chain {
        r.Info(fmt.Sprintf("# extract %s", cid.Short()))
        s.extract(cid)
    }
}
