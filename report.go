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

// Tarit | Reporter
//
// Commands do not print - they emit events into a Reporter, and the
// formatter decides rendering. Verbosity filters the stream but never
// changes command semantics: quiet drops Info, listing rows and errors are
// always rendered.
package main

import (
    "fmt"
    "io"
    "strings"
    "time"

    "github.com/dustin/go-humanize"
)

// one branch in `branch` listing
type BranchRow struct {
    Name    string
    Id      Sha1
    Current bool // HEAD is attached to this branch
}

// one commit in `log` output
type CommitRow struct {
    Id    Sha1
    Time  time.Time
    Decor []string // branch names + literal HEAD, in display order
    Msg   string
    Full  bool // --full: full id, absolute time, whole message
}

type Reporter interface {
    Info(text string)
    Warn(text string)
    Error(text string)
    BranchRow(row BranchRow)
    CommitRow(row CommitRow)
}

// Reporter rendering to plain text, the built-in formatter
type TextReporter struct {
    Verbose int
    W       io.Writer // info + rows
    ErrW    io.Writer // warnings + errors
}

var _ Reporter = (*TextReporter)(nil)

func (r *TextReporter) Info(text string) {
    if r.Verbose > 0 {
        fmt.Fprintln(r.W, text)
    }
}

func (r *TextReporter) Warn(text string) {
    fmt.Fprintln(r.ErrW, "W: "+text)
}

func (r *TextReporter) Error(text string) {
    fmt.Fprintln(r.ErrW, "E: "+text)
}

func (r *TextReporter) BranchRow(row BranchRow) {
    mark := " "
    if row.Current {
        mark = "*"
    }
    fmt.Fprintf(r.W, "%s %s\t%s\n", mark, row.Name, row.Id.Short())
}

func (r *TextReporter) CommitRow(row CommitRow) {
    id := row.Id.Short()
    when := humanize.Time(row.Time)
    msg := row.Msg
    if row.Full {
        id = row.Id.String()
        when = row.Time.Format(time.RFC3339)
    } else {
        // first line only
        if i := strings.IndexByte(msg, '\n'); i >= 0 {
            msg = msg[:i]
        }
    }
    decor := ""
    if len(row.Decor) != 0 {
        decor = " (" + strings.Join(row.Decor, ", ") + ")"
    }
    fmt.Fprintf(r.W, "%s %s%s %s\n", id, when, decor, msg)
}
