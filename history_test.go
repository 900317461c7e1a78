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

// Tarit | History graph, resolver and store record tests
// (no tar subprocess involved - commit records are written directly)
package main

import (
    "os"
    "strings"
    "testing"
)

// fresh tracked root + opened store for direct store-layer access
// (commands must not run while the returned store is open - it holds the lock)
func xopenroot(t *testing.T) *Store {
    t.Helper()
    root := t.TempDir()
    t.Setenv("TARIT_ROOT", root)
    verbose = 0
    s := store_init()
    t.Cleanup(s.Close)
    return s
}

func xsha1(s string) Sha1 {
    sha1, err := Sha1Parse(s)
    if err != nil {
        panic(err)
    }
    return sha1
}

// record fake commit with given id/parent + dummy blobs
func xfakecommit(t *testing.T, s *Store, id, parent Sha1, msg string) {
    t.Helper()
    s.writecommit(&Commit{id: id, parent: parent, msg: msg, ts: 1600000000.5})
    for _, path := range []string{s.archivepath(id), s.snapstatepath(id)} {
        err := os.WriteFile(path, []byte("blob"), 0666)
        if err != nil {
            t.Fatal(err)
        }
    }
}

func catch(f func()) (err *Error) {
    defer errcatch(func(e *Error) { err = e })
    f()
    return nil
}

func TestBranchNameGrammar(t *testing.T) {
    var tests = []struct{ name string; ok bool }{
        {"first", true},
        {"valid_name", true},
        {"_x", true},
        {"B2", true},
        {"", false},
        {"2b", false},
        {"invalid name", false},
        {"invalid!name", false},
        {" invalid_name", false},
        {"invalid_name ", false},
        {"invalid-name", false},
        {"über", false},
    }

    for _, tt := range tests {
        err := catch(func() { checkbranchname(tt.name) })
        if (err == nil) != tt.ok {
            t.Errorf("checkbranchname(%q) -> %v  ; want ok=%v", tt.name, err, tt.ok)
        }
    }
}

func TestSha1Gen(t *testing.T) {
    id1 := Sha1Gen(Sha1{}, "hello", 1600000000.25)
    id2 := Sha1Gen(Sha1{}, "hello", 1600000000.25)
    if id1 != id2 {
        t.Errorf("Sha1Gen not stable: %s != %s", id1, id2)
    }

    // id changes with any of parent/msg/ts
    if Sha1Gen(id1, "hello", 1600000000.25) == id1 ||
       Sha1Gen(Sha1{}, "hello!", 1600000000.25) == id1 ||
       Sha1Gen(Sha1{}, "hello", 1600000000.5) == id1 {
        t.Error("Sha1Gen collides on different input")
    }

    if len(id1.String()) != 40 {
        t.Errorf("id %q is not 40 hex digits", id1)
    }
    if len(id1.Short()) != 7 {
        t.Errorf("short id %q is not 7 hex digits", id1.Short())
    }
}

func TestCommitRecord(t *testing.T) {
    s := xopenroot(t)

    var tests = []*Commit{
        {id: Sha1Gen(Sha1{}, "root", 1.25), msg: "root", ts: 1600000000.123456789},
        {id: Sha1Gen(Sha1{}, "multi", 2.5), parent: Sha1Gen(Sha1{}, "root", 1.25),
         msg: "multi\nline \\ msg\n", ts: 1600000001.0},
    }

    for _, c := range tests {
        s.writecommit(c)
        c_, err := s.loadcommit(c.id)
        if err != nil {
            t.Fatalf("loadcommit(%s): %s", c.id, err)
        }
        if *c_ != *c {
            t.Errorf("commit record round-trip:\nhave %+v\nwant %+v", c_, c)
        }
    }

    // missing record -> error, not raise
    if _, err := s.loadcommit(xsha1("00112233445566778899aabbccddeeff00112233")); err == nil {
        t.Error("loadcommit of missing commit succeeded")
    }
}

func TestHEADFile(t *testing.T) {
    s := xopenroot(t)

    head := s.readHEAD()
    if !(head.IsAttached() && head.branch == "main") {
        t.Fatalf("fresh HEAD = %+v", head)
    }

    id := Sha1Gen(Sha1{}, "c", 1.0)
    for _, h := range []Head{DetachedHead(id), AttachedHead("devel")} {
        s.writeHEAD(h)
        if h_ := s.readHEAD(); h_ != h {
            t.Errorf("HEAD round-trip: have %+v, want %+v", h_, h)
        }
    }
}

func TestAncestors(t *testing.T) {
    s := xopenroot(t)

    c1 := xsha1("1111111111111111111111111111111111111111")
    c2 := xsha1("2222222222222222222222222222222222222222")
    c3 := xsha1("3333333333333333333333333333333333333333")
    xfakecommit(t, s, c1, Sha1{}, "c1")
    xfakecommit(t, s, c2, c1, "c2")
    xfakecommit(t, s, c3, c2, "c3")

    chain := s.ancestors(c3)
    if !(len(chain) == 3 && chain[0] == c1 && chain[1] == c2 && chain[2] == c3) {
        t.Fatalf("ancestors(c3) = %v", chain)
    }

    // chain of a root commit is the commit itself
    chain = s.ancestors(c1)
    if !(len(chain) == 1 && chain[0] == c1) {
        t.Fatalf("ancestors(c1) = %v", chain)
    }

    // dangling parent -> CorruptHistory
    corrupt := xsha1("4444444444444444444444444444444444444444")
    xfakecommit(t, s, corrupt, xsha1("5555555555555555555555555555555555555555"), "dangling")
    err := catch(func() { s.ancestors(corrupt) })
    if err == nil || !strings.Contains(err.Error(), "history corrupt") {
        t.Fatalf("ancestors over dangling parent -> %v", err)
    }
}

func TestBranchOps(t *testing.T) {
    s := xopenroot(t)

    // branch with no commits yet
    err := catch(func() { s.xheadcommit() })
    if err == nil || !strings.Contains(err.Error(), "no commits yet") {
        t.Fatalf("xheadcommit on fresh store -> %v", err)
    }

    c1 := xsha1("1111111111111111111111111111111111111111")
    c2 := xsha1("2222222222222222222222222222222222222222")
    xfakecommit(t, s, c1, Sha1{}, "c1")
    xfakecommit(t, s, c2, c1, "c2")
    s.writebranch("main", c2)

    // create, no-force duplicate, force retarget
    s.setbranch("new", c2, false)
    err = catch(func() { s.setbranch("new", c1, false) })
    if err == nil || !strings.Contains(err.Error(), "already exists") {
        t.Fatalf("setbranch duplicate -> %v", err)
    }
    s.setbranch("new", c1, true)
    if id, _ := s.readbranch("new"); id != c1 {
        t.Fatalf("forced setbranch: new at %s; want %s", id, c1)
    }

    // moving the branch HEAD is attached to is permitted
    s.setbranch("main", c1, true)
    s.writebranch("main", c2)

    // delete: HEAD branch refused, unknown refused, second delete refused
    err = catch(func() { s.deletebranch("main") })
    if err == nil || !strings.Contains(err.Error(), "used by HEAD") {
        t.Fatalf("deletebranch of HEAD branch -> %v", err)
    }
    s.deletebranch("new")
    err = catch(func() { s.deletebranch("new") })
    if err == nil || !strings.Contains(err.Error(), "unknown branch") {
        t.Fatalf("second deletebranch -> %v", err)
    }

    // listing is sorted and marks the current branch
    s.setbranch("zz", c1, false)
    s.setbranch("aa", c1, false)
    infov := s.listbranches()
    if !(len(infov) == 3 && infov[0].name == "aa" && infov[1].name == "main" && infov[2].name == "zz") {
        t.Fatalf("listbranches: %v", infov)
    }
    if !(infov[1].current && !infov[0].current && !infov[2].current) {
        t.Fatalf("listbranches current marks: %v", infov)
    }
}

func TestResolve(t *testing.T) {
    s := xopenroot(t)

    cab1 := xsha1("abcd111111111111111111111111111111111111")
    cab2 := xsha1("abcd222222222222222222222222222222222222")
    cfff := xsha1("ffff111111111111111111111111111111111111")
    xfakecommit(t, s, cab1, Sha1{}, "ab1")
    xfakecommit(t, s, cab2, cab1, "ab2")
    xfakecommit(t, s, cfff, Sha1{}, "fff")
    s.writebranch("main", cab2)
    s.writebranch("other", cfff)

    // branch name wins
    if res := s.resolve("other"); !(res.id == cfff && res.branch == "other") {
        t.Fatalf("resolve(other) = %+v", res)
    }

    // full id
    if res := s.resolve(cab1.String()); !(res.id == cab1 && res.branch == "") {
        t.Fatalf("resolve(full id) = %+v", res)
    }

    // unique prefix
    if res := s.resolve("ffff"); res.id != cfff {
        t.Fatalf("resolve(ffff) = %+v", res)
    }

    // ambiguous prefix
    err := catch(func() { s.resolve("abcd") })
    if err == nil || !strings.Contains(err.Error(), "ambiguous ref") {
        t.Fatalf("resolve(abcd) -> %v", err)
    }

    // hex-shaped strings that match nothing are bad ids, not bad branch names
    for _, ref := range []string{"fff", "0123456789"} {
        err = catch(func() { s.resolve(ref) })
        if err == nil || !strings.Contains(err.Error(), "unknown ref") {
            t.Fatalf("resolve(%q) -> %v", ref, err)
        }
    }

    // name-shaped string -> UnknownBranch, anything else -> UnknownRef
    err = catch(func() { s.resolve("fresh") })
    if err == nil || !strings.Contains(err.Error(), "unknown branch") {
        t.Fatalf("resolve(fresh) -> %v", err)
    }
    err = catch(func() { s.resolve("no such") })
    if err == nil || !strings.Contains(err.Error(), "unknown ref") {
        t.Fatalf("resolve(no such) -> %v", err)
    }

    // HEAD token: attached with no commit -> NoCommitsYet
    err = catch(func() { s.resolve("HEAD") })
    if err == nil || !strings.Contains(err.Error(), "no commits yet") {
        t.Fatalf("resolve(HEAD) on fresh store -> %v", err)
    }

    // HEAD token follows attached branch, keeping its pointer form
    s.writeHEAD(AttachedHead("main"))
    if res := s.resolve("HEAD"); !(res.id == cab2 && res.branch == "main") {
        t.Fatalf("resolve(HEAD) attached = %+v", res)
    }

    // detached HEAD
    s.writeHEAD(DetachedHead(cfff))
    if res := s.resolve("HEAD"); !(res.id == cfff && res.branch == "") {
        t.Fatalf("resolve(HEAD) detached = %+v", res)
    }
}

func TestReachable(t *testing.T) {
    s := xopenroot(t)

    c1 := xsha1("1111111111111111111111111111111111111111")
    c2 := xsha1("2222222222222222222222222222222222222222")
    c3 := xsha1("3333333333333333333333333333333333333333")
    lone := xsha1("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
    xfakecommit(t, s, c1, Sha1{}, "c1")
    xfakecommit(t, s, c2, c1, "c2")
    xfakecommit(t, s, c3, c2, "c3")
    xfakecommit(t, s, lone, Sha1{}, "abandoned")
    s.writebranch("main", c2)
    s.writeHEAD(DetachedHead(c3))

    keep := s.reachable()
    for _, id := range []Sha1{c1, c2, c3} {
        if !keep.Contains(id) {
            t.Errorf("reachable: %s missing", id)
        }
    }
    if keep.Contains(lone) {
        t.Errorf("reachable: %s should not be reachable", lone)
    }
}
