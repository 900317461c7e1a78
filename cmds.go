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

// Tarit | Command surface
//
// Every command is a thin composition over the store, resolver, history
// graph, snapshot engine and working-tree controller: acquire the store,
// validate arguments, dispatch, emit events. Commands never touch blob
// paths or subprocesses directly.
package main

import (
    "flag"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"
    "unicode"
)

// bad flag/argument combination
type UsageError struct {
    cmd string
    why string
}

func (e *UsageError) Error() string {
    return fmt.Sprintf("tarit %s: %s", e.cmd, e.why)
}

func tstime(ts float64) time.Time {
    sec := int64(ts)
    return time.Unix(sec, int64((ts-float64(sec))*1e9))
}

func firstline(s string) string {
    if i := strings.IndexByte(s, '\n'); i >= 0 {
        s = s[:i]
    }
    return s
}

// -------- tarit init --------

func cmd_init_usage() {
    fmt.Fprint(os.Stderr,
`tarit init

Turn current directory ($TARIT_ROOT if set) into a tracked root.
`)
}

func cmd_init(r Reporter, argv []string) {
    flags := flag.FlagSet{Usage: cmd_init_usage}
    flags.Init("", flag.ExitOnError)
    flags.Parse(argv)
    if len(flags.Args()) != 0 {
        cmd_init_usage()
        os.Exit(1)
    }

    s := store_init()
    defer s.Close()
    r.Info(fmt.Sprintf("Initialized empty tracked root in %s", s.ctl))
}

// -------- tarit commit --------

func cmd_commit_usage() {
    fmt.Fprint(os.Stderr,
`tarit commit <msg>

Record snapshot of the tracked root as a new commit with message msg.
The snapshot is incremental against the commit HEAD is at; the branch HEAD
is attached to advances to the new commit (main is created by the very
first commit), detached HEAD advances itself.
`)
}

func cmd_commit(r Reporter, argv []string) {
    flags := flag.FlagSet{Usage: cmd_commit_usage}
    flags.Init("", flag.ExitOnError)
    flags.Parse(argv)
    argv = flags.Args()
    if len(argv) != 1 {
        cmd_commit_usage()
        os.Exit(1)
    }
    msg := argv[0]
    if msg == "" {
        raise(&UsageError{"commit", "empty commit message"})
    }
    for _, c := range msg {
        if unicode.IsControl(c) && c != '\n' && c != '\t' {
            raise(&UsageError{"commit", "commit message must be printable"})
        }
    }

    s := store_open()
    defer s.Close()

    head := s.readHEAD()
    id, touched := s.createcommit(msg)

    where := "detached HEAD"
    if head.IsAttached() {
        where = head.branch
    }
    r.Info(fmt.Sprintf("[%s %s] %s (%d paths)", where, id.Short(), firstline(msg), len(touched)))
}

// -------- tarit checkout --------

func cmd_checkout_usage() {
    fmt.Fprint(os.Stderr,
`tarit checkout [-f] <ref>
tarit checkout --orphan <name>

Reconstruct the tracked root at ref - a branch name, commit id, or unique
id prefix - by replaying the snapshot chain from the root commit. HEAD
attaches to ref if it is a branch name and detaches otherwise. Refuses to
lose uncommitted changes unless -f is given.

With --orphan, only HEAD is switched - to new branch name with no commit
yet; the filesystem is not touched.

NOTE status right after checkout may report paths that did not really
change (reconstruction invalidates the incremental snapshot state); commit
a restore point to get status back to normal.
`)
}

func cmd_checkout(r Reporter, argv []string) {
    flags := flag.FlagSet{Usage: cmd_checkout_usage}
    flags.Init("", flag.ExitOnError)
    force := flags.Bool("f", false, "discard uncommitted changes")
    flags.BoolVar(force, "force", *force, "discard uncommitted changes")
    orphan := flags.Bool("orphan", false, "create new branch with no commit")
    flags.Parse(argv)
    argv = flags.Args()

    if *orphan {
        if len(argv) != 1 {
            cmd_checkout_usage()
            os.Exit(1)
        }
        name := argv[0]

        s := store_open()
        defer s.Close()

        checkbranchname(name)
        if s.havebranch(name) {
            raise(&BranchExists{name})
        }
        s.writeHEAD(AttachedHead(name))
        r.Info(fmt.Sprintf("Switched to orphan branch %q", name))
        return
    }

    if len(argv) == 0 {
        raise(&MissingRef{})
    }
    if len(argv) != 1 {
        cmd_checkout_usage()
        os.Exit(1)
    }

    s := store_open()
    defer s.Close()

    res := s.resolve(argv[0])
    newhead := DetachedHead(res.id)
    if res.branch != "" {
        newhead = AttachedHead(res.branch)
    }

    // already there - only the pointer form can change; this must not require
    // a clean tree (e.g. `checkout base` right after `reset base`)
    if cur, ok := s.headcommit(); ok && cur == res.id {
        s.writeHEAD(newhead)
        r.Info(fmt.Sprintf("Already at %s", res.id.Short()))
        return
    }

    s.gatedirty(*force)
    s.checkouttree(r, res.id)
    s.writeHEAD(newhead)

    if res.branch != "" {
        r.Info(fmt.Sprintf("Switched to branch %q at %s", res.branch, res.id.Short()))
    } else {
        r.Info(fmt.Sprintf("HEAD detached at %s", res.id.Short()))
    }
}

// -------- tarit reset --------

func cmd_reset_usage() {
    fmt.Fprint(os.Stderr,
`tarit reset [--hard] <ref>

Move the branch HEAD is attached to (or detached HEAD itself) to ref. The
working tree is left alone and may become dirty as a result; with --hard
the tree is reconstructed at ref as well, discarding whatever was there.
`)
}

func cmd_reset(r Reporter, argv []string) {
    flags := flag.FlagSet{Usage: cmd_reset_usage}
    flags.Init("", flag.ExitOnError)
    hard := flags.Bool("hard", false, "also reconstruct the working tree")
    flags.Parse(argv)
    argv = flags.Args()
    if len(argv) == 0 {
        raise(&MissingRef{})
    }
    if len(argv) != 1 {
        cmd_reset_usage()
        os.Exit(1)
    }

    s := store_open()
    defer s.Close()

    res := s.resolve(argv[0])
    head := s.readHEAD()
    if head.IsAttached() {
        s.writebranch(head.branch, res.id)
        r.Info(fmt.Sprintf("Branch %q is now at %s", head.branch, res.id.Short()))
    } else {
        s.writeHEAD(DetachedHead(res.id))
        r.Info(fmt.Sprintf("HEAD is now at %s", res.id.Short()))
    }

    if *hard {
        // --hard is the user accepting the loss - no clean-tree gate
        s.checkouttree(r, res.id)
    }
}

// -------- tarit branch --------

func cmd_branch_usage() {
    fmt.Fprint(os.Stderr,
`tarit branch
tarit branch [-f] <name> [<ref>]
tarit branch -d <name>

With no arguments list branches, marking the one HEAD is attached to. With
name create branch pointing to ref (HEAD's commit by default); moving an
existing branch needs -f. With -d delete the branch; the branch HEAD is
attached to cannot be deleted.
`)
}

func cmd_branch(r Reporter, argv []string) {
    flags := flag.FlagSet{Usage: cmd_branch_usage}
    flags.Init("", flag.ExitOnError)
    force := flags.Bool("f", false, "move existing branch")
    flags.BoolVar(force, "force", *force, "move existing branch")
    del := flags.Bool("d", false, "delete branch")
    flags.BoolVar(del, "delete", *del, "delete branch")
    flags.Parse(argv)
    argv = flags.Args()

    s := store_open()
    defer s.Close()

    if *del {
        switch {
        case *force:
            raise(&UsageError{"branch", "-d and -f are mutually exclusive"})
        case len(argv) == 0:
            raise(&UsageError{"branch", "-d needs a branch name"})
        case len(argv) > 1:
            raise(&UsageError{"branch", "-d takes only a branch name"})
        }
        name := argv[0]
        s.deletebranch(name)
        r.Info(fmt.Sprintf("Deleted branch %q", name))
        return
    }

    switch len(argv) {
    case 0:
        if *force {
            raise(&UsageError{"branch", "-f needs a branch name"})
        }
        for _, b := range s.listbranches() {
            r.BranchRow(BranchRow{Name: b.name, Id: b.id, Current: b.current})
        }

    case 1, 2:
        name := argv[0]
        checkbranchname(name)
        var target Sha1
        if len(argv) == 2 {
            target = s.resolve(argv[1]).id
        } else {
            target = s.xheadcommit()
        }
        s.setbranch(name, target, *force)
        r.Info(fmt.Sprintf("Branch %q is at %s", name, target.Short()))

    default:
        cmd_branch_usage()
        os.Exit(1)
    }
}

// -------- tarit show --------

func cmd_show_usage() {
    fmt.Fprint(os.Stderr,
`tarit show [<ref>]

Show the paths touched by ref's snapshot (HEAD by default).
`)
}

func cmd_show(r Reporter, argv []string) {
    flags := flag.FlagSet{Usage: cmd_show_usage}
    flags.Init("", flag.ExitOnError)
    flags.Parse(argv)
    argv = flags.Args()
    if len(argv) > 1 {
        cmd_show_usage()
        os.Exit(1)
    }
    ref := "HEAD"
    if len(argv) == 1 {
        ref = argv[0]
    }

    s := store_open()
    defer s.Close()

    res := s.resolve(ref)
    c := s.xloadcommit(res.id)
    r.Info(fmt.Sprintf("commit %s", c.id))
    r.Info(fmt.Sprintf("date   %s", tstime(c.ts).Format(time.RFC3339)))
    r.Info("")
    for _, line := range strings.Split(c.msg, "\n") {
        r.Info("    " + line)
    }
    r.Info("")
    for _, path := range s.listpaths(res.id) {
        r.Info(path)
    }
}

// -------- tarit status --------

func cmd_status_usage() {
    fmt.Fprint(os.Stderr,
`tarit status

List paths changed since the current commit; "clean" if none.
`)
}

func cmd_status(r Reporter, argv []string) {
    flags := flag.FlagSet{Usage: cmd_status_usage}
    flags.Init("", flag.ExitOnError)
    flags.Parse(argv)
    if len(flags.Args()) != 0 {
        cmd_status_usage()
        os.Exit(1)
    }

    s := store_open()
    defer s.Close()

    pathv := s.dirtypaths()
    if len(pathv) == 0 {
        r.Info("clean")
        return
    }
    for _, path := range pathv {
        r.Info(path)
    }
}

// -------- tarit log --------

func cmd_log_usage() {
    fmt.Fprint(os.Stderr,
`tarit log [--all] [--full] [<ref> ...]

Show history of every given ref (HEAD by default; every branch and HEAD
with --all), newest first. Refs resolving to the same commit are shown as
one group. --full shows full ids, times and messages.
`)
}

func cmd_log(r Reporter, argv []string) {
    flags := flag.FlagSet{Usage: cmd_log_usage}
    flags.Init("", flag.ExitOnError)
    all := flags.Bool("all", false, "log every branch and HEAD")
    full := flags.Bool("full", false, "full ids, times and messages")
    flags.Parse(argv)
    argv = flags.Args()

    s := store_open()
    defer s.Close()

    // starting points, in reporting order
    startv := []Sha1{}
    switch {
    case *all:
        for _, b := range s.listbranches() {
            startv = append(startv, b.id)
        }
        if id, ok := s.headcommit(); ok {
            startv = append(startv, id)
        }
    case len(argv) != 0:
        for _, ref := range argv {
            startv = append(startv, s.resolve(ref).id)
        }
    default:
        startv = append(startv, s.xheadcommit())
    }

    // decorations: branch names pointing at a commit + HEAD
    decor := map[Sha1][]string{}
    for _, b := range s.listbranches() {
        decor[b.id] = append(decor[b.id], b.name)
    }
    if id, ok := s.headcommit(); ok {
        decor[id] = append(decor[id], "HEAD")
    }

    // several refs at the same commit (e.g. HEAD and the branch it is
    // attached to) would repeat the same chain - show it once
    seen := Sha1Set{}
    for _, start := range startv {
        if seen.Contains(start) {
            continue
        }
        seen.Add(start)
        chain := s.ancestors(start)
        r.Info(fmt.Sprintf("Log branch from %s", start.Short()))
        for i := len(chain) - 1; i >= 0; i-- {
            id := chain[i]
            c := s.xloadcommit(id)
            r.CommitRow(CommitRow{
                Id:    id,
                Time:  tstime(c.ts),
                Decor: decor[id],
                Msg:   c.msg,
                Full:  *full,
            })
        }
    }
}

// -------- tarit prune --------

func cmd_prune_usage() {
    fmt.Fprint(os.Stderr,
`tarit prune

Remove commits unreachable from any branch and from HEAD: their records,
archive blobs and snapshot-state blobs. Also sweeps stray blobs and
temporaries left by interrupted runs.
`)
}

func cmd_prune(r Reporter, argv []string) {
    flags := flag.FlagSet{Usage: cmd_prune_usage}
    flags.Init("", flag.ExitOnError)
    flags.Parse(argv)
    if len(flags.Args()) != 0 {
        cmd_prune_usage()
        os.Exit(1)
    }

    s := store_open()
    defer s.Close()

    keep := s.reachable()
    npruned := 0
    idv := s.commitids()
    sort.Sort(BySha1(idv)) // so prune reports in stable order between runs
    for _, id := range idv {
        if keep.Contains(id) {
            continue
        }
        err := os.Remove(s.metapath(id))
        raiseif(err)
        os.Remove(s.archivepath(id))
        os.Remove(s.snapstatepath(id))
        r.Info(fmt.Sprintf("# pruned %s", id.Short()))
        npruned++
    }

    // stray blobs without commit record + temporaries of interrupted runs
    dentryv, err := os.ReadDir(filepath.Join(s.ctl, "commits"))
    raiseif(err)
    for _, dentry := range dentryv {
        name := dentry.Name()
        base := strings.TrimSuffix(strings.TrimSuffix(name, ".archive"), ".snapstate")
        if id, err := Sha1Parse(base); err == nil && s.havecommit(id) {
            continue
        }
        err := os.Remove(filepath.Join(s.ctl, "commits", name))
        raiseif(err)
        r.Info(fmt.Sprintf("# swept %s", name))
    }

    r.Info(fmt.Sprintf("pruned %d commits", npruned))
}
