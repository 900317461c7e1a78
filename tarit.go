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

/*
Tarit - Backup a directory with git-like workflow; incrementally

This program turns a directory into a tracked root and backups it as a chain
of snapshots with git-like vocabulary on top: commits, branches, HEAD,
checkout, reset, log, show, status. Snapshots are not kept in a
content-addressed object store - instead every commit is one incremental
archive produced by GNU tar --listed-incremental against the state of its
parent commit. Together with the archive, the snapshot-state file tar emits
is preserved per commit, so that the next commit can again be a minimal
delta.

All metadata lives under hidden control directory .tarit inside the tracked
root:

	HEAD                    branch:<name> | commit:<id>
	branches/<name>         <id>
	commit-meta/<id>        parent/ts/msg record
	commits/<id>.archive    incremental archive (opaque tar output)
	commits/<id>.snapstate  listed-incremental state as of that commit

Commits form a forest - every commit has at most one parent, and a branch is
just a mutable pointer to a commit. Reconstructing a historical state
(checkout) replays the archive chain from the root commit up to the target,
in order; tar incremental extraction also replays file removals recorded in
the archives, so the result is exactly the tree as of the target commit.

NOTE extraction invalidates the snapshot-state of whatever commit the tree
was at before - tar cannot compute a meaningful next delta against a
reconstructed tree. Because of that, the first commit after a checkout or
reset --hard re-snapshots touched paths in full instead of producing a
minimal delta, and `status` right after a checkout may report paths that did
not really change. Committing a "restore point" right after checkout brings
status back to normal.

Please see README.rst with user-level overview on how to use tarit.
*/
package main

import (
    "flag"
    "fmt"
    "os"
    "runtime/debug"
)

// verbose output
// 0 - silent (only errors and listing rows)
// 1 - info
// 2 - progress of tar subprocesses
// 3 - debug
var verbose = 1

func debugf(format string, a ...interface{}) {
    if verbose > 2 {
        fmt.Printf(format, a...)
        fmt.Println()
    }
}

// what to pass to tar subprocess stdout/stderr
// DontRedirect - no-redirection, PIPE - output to us
func tarprogress() StdioRedirect {
    if verbose > 1 {
        return DontRedirect
    }
    return PIPE
}

var commands = map[string]func(Reporter, []string){
    "init":     cmd_init,
    "commit":   cmd_commit,
    "checkout": cmd_checkout,
    "reset":    cmd_reset,
    "branch":   cmd_branch,
    "show":     cmd_show,
    "status":   cmd_status,
    "log":      cmd_log,
    "prune":    cmd_prune,
}

func usage() {
    fmt.Fprintf(os.Stderr,
`tarit [options] <command>

    init        turn current directory into a tracked root
    commit      record snapshot of the tracked root
    checkout    reconstruct tracked root at a commit or branch
    reset       move current branch or detached HEAD to another commit
    branch      list, create or delete branches
    show        show paths touched by a commit
    status      show paths changed since the current commit
    log         show commit history
    prune       remove commits unreachable from branches and HEAD

  common options:

    -h --help       this help text.
    -v --verbose    increase verbosity.
    -q --quiet      decrease verbosity.
`)
}

func main() {
    flag.Usage = usage
    vup, vdown := countFlag(0), countFlag(0)
    flag.Var(&vup, "v", "verbosity level")
    flag.Var(&vup, "verbose", "verbosity level")
    flag.Var(&vdown, "q", "decrease verbosity")
    flag.Var(&vdown, "quiet", "decrease verbosity")
    flag.Parse()
    argv := flag.Args()

    if vup > 0 && vdown > 0 {
        fmt.Fprintln(os.Stderr, "E: -v/--verbose and -q/--quiet are mutually exclusive")
        os.Exit(1)
    }
    verbose += int(vup) - int(vdown)

    if len(argv) == 0 {
        usage()
        os.Exit(1)
    }

    cmd := commands[argv[0]]
    if cmd == nil {
        fmt.Fprintf(os.Stderr, "E: unknown command %q\n", argv[0])
        os.Exit(1)
    }

    // catch Error and report info from it
    here := myfuncname()
    defer errcatch(func(e *Error) {
        e = erraddcallingcontext(here, e)
        fmt.Fprintln(os.Stderr, e)

        // also show traceback if debug
        if verbose > 2 {
            fmt.Fprint(os.Stderr, "\n")
            debug.PrintStack()
        }

        os.Exit(1)
    })

    cmd(&TextReporter{Verbose: verbose, W: os.Stdout, ErrW: os.Stderr}, argv[1:])
}
