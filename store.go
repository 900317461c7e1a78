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

// Tarit | Store layout
//
// All tarit metadata lives under hidden control directory inside the
// tracked root:
//
//      .tarit/HEAD                    branch:<name> | commit:<id>
//      .tarit/config                  ini file: [core] repositoryformatversion, tar
//      .tarit/branches/<name>         <id>
//      .tarit/commit-meta/<id>        parent/ts/msg record
//      .tarit/commits/<id>.archive    archive blob
//      .tarit/commits/<id>.snapstate  snapshot-state blob
//
// Textual files are UTF-8 and newline-terminated; all metadata updates go
// through temp-file + rename (see xwritefile). No multi-file atomicity is
// attempted - a crash in between e.g. commit-meta write and branch advance
// leaves an unreachable commit which prune reclaims later.
package main

import (
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strconv"
    "strings"

    "github.com/gofrs/flock"
    "gopkg.in/ini.v1"
)

const controlDir = ".tarit"

// tracked root opened for work
//
// The opened store holds an advisory lock on <control>/lock for the whole
// command - simultaneous tarit invocations against the same tracked root
// fail with StoreBusy instead of racing each other.
type Store struct {
    root   string // tracked root
    ctl    string // <root>/.tarit
    tarbin string // tar binary to spawn ($TARIT_TAR > core.tar > "tar")
    flk    *flock.Flock
}

type NotTrackedRoot struct {
    root string
}

func (e *NotTrackedRoot) Error() string {
    return fmt.Sprintf("%s: not a tracked root (no valid %s)", e.root, controlDir)
}

type AlreadyTrackedRoot struct {
    root string
}

func (e *AlreadyTrackedRoot) Error() string {
    return fmt.Sprintf("%s: already a tracked root", e.root)
}

type StoreBusy struct {
    root string
}

func (e *StoreBusy) Error() string {
    return fmt.Sprintf("%s: another tarit is running on this tracked root", e.root)
}

// tracked root location: $TARIT_ROOT if set, cwd otherwise
func store_root() string {
    root := os.Getenv("TARIT_ROOT")
    if root == "" {
        cwd, err := os.Getwd()
        raiseif(err)
        root = cwd
    }
    return root
}

// turn directory into a tracked root -> opened store
// The new store has HEAD = branch:main and no commits; branch file for main
// appears only with the first commit.
func store_init() *Store {
    root := store_root()
    ctl := filepath.Join(root, controlDir)
    if _, err := os.Stat(ctl); err == nil {
        raise(&AlreadyTrackedRoot{root})
    }

    for _, d := range []string{ctl, filepath.Join(ctl, "commits"),
                               filepath.Join(ctl, "commit-meta"),
                               filepath.Join(ctl, "branches")} {
        err := os.MkdirAll(d, 0777)
        raiseif(err)
    }

    cfg := ini.Empty()
    core := cfg.Section("core")
    core.Key("repositoryformatversion").SetValue("0")
    core.Key("tar").SetValue("tar")
    err := cfg.SaveTo(filepath.Join(ctl, "config"))
    raiseif(err)

    xwritefile(filepath.Join(ctl, "HEAD"), "branch:main\n")

    return store_lock(root, ctl, "tar")
}

// open tracked root for work -> store
func store_open() *Store {
    root := store_root()
    ctl := filepath.Join(root, controlDir)

    st, err := os.Stat(ctl)
    if err != nil || !st.IsDir() {
        raise(&NotTrackedRoot{root})
    }
    if _, err := os.Stat(filepath.Join(ctl, "HEAD")); err != nil {
        raise(&NotTrackedRoot{root})
    }

    tarbin := "tar"
    cfgpath := filepath.Join(ctl, "config")
    if _, err := os.Stat(cfgpath); err == nil {
        cfg, err := ini.Load(cfgpath)
        if err != nil {
            e := aserror(err)
            e = erraddcontext(e, &NotTrackedRoot{root})
            raise(e)
        }
        if v := cfg.Section("core").Key("tar").String(); v != "" {
            tarbin = v
        }
        if v := cfg.Section("core").Key("verbose").String(); v != "" {
            // config sets default verbosity; -v/-q on the command line win
            if n, err := strconv.Atoi(v); err == nil && verbose == 1 {
                verbose = n
            }
        }
    }
    if v := os.Getenv("TARIT_TAR"); v != "" {
        tarbin = v
    }

    return store_lock(root, ctl, tarbin)
}

func store_lock(root, ctl, tarbin string) *Store {
    flk := flock.New(filepath.Join(ctl, "lock"))
    ok, err := flk.TryLock()
    raiseif(err)
    if !ok {
        raise(&StoreBusy{root})
    }
    return &Store{root: root, ctl: ctl, tarbin: tarbin, flk: flk}
}

// release the store lock; the store must not be used after Close
// Close runs in defer also when an error is unwinding - it must not raise.
func (s *Store) Close() {
    _ = s.flk.Unlock()
}

// -------- blob/meta paths --------

func (s *Store) archivepath(id Sha1) string {
    return filepath.Join(s.ctl, "commits", id.String()+".archive")
}

func (s *Store) snapstatepath(id Sha1) string {
    return filepath.Join(s.ctl, "commits", id.String()+".snapstate")
}

func (s *Store) metapath(id Sha1) string {
    return filepath.Join(s.ctl, "commit-meta", id.String())
}

func (s *Store) branchpath(name string) string {
    return filepath.Join(s.ctl, "branches", name)
}

// -------- HEAD --------

// current position - either attached (to a branch) or detached (at a commit)
type Head struct {
    branch string // attached iff != ""
    commit Sha1   // detached target
}

func AttachedHead(branch string) Head { return Head{branch: branch} }
func DetachedHead(id Sha1) Head       { return Head{commit: id} }

func (h Head) IsAttached() bool { return h.branch != "" }

func (s *Store) readHEAD() Head {
    line := xreadline(filepath.Join(s.ctl, "HEAD"))
    kind, arg, err := headtail(line, ":")
    if err != nil {
        raise(&NotTrackedRoot{s.root})
    }
    switch kind {
    case "branch":
        return AttachedHead(arg)
    case "commit":
        id, err := Sha1Parse(arg)
        if err != nil {
            raise(&NotTrackedRoot{s.root})
        }
        return DetachedHead(id)
    }
    raise(&NotTrackedRoot{s.root})
    panic(0)
}

func (s *Store) writeHEAD(h Head) {
    var line string
    if h.IsAttached() {
        line = fmt.Sprintf("branch:%s\n", h.branch)
    } else {
        line = fmt.Sprintf("commit:%s\n", h.commit)
    }
    xwritefile(filepath.Join(s.ctl, "HEAD"), line)
}

// -------- branches --------

func (s *Store) havebranch(name string) bool {
    _, err := os.Stat(s.branchpath(name))
    return err == nil
}

// branch target; ok=false if there is no such branch
func (s *Store) readbranch(name string) (Sha1, bool) {
    data, err := os.ReadFile(s.branchpath(name))
    if err != nil {
        return Sha1{}, false
    }
    id, err := Sha1Parse(strings.TrimSpace(String(data)))
    if err != nil {
        raisef("branch %q: corrupt target %q", name, strings.TrimSpace(String(data)))
    }
    return id, true
}

func (s *Store) writebranch(name string, id Sha1) {
    xwritefile(s.branchpath(name), id.String()+"\n")
}

func (s *Store) removebranch(name string) {
    err := os.Remove(s.branchpath(name))
    raiseif(err)
}

// all branch names, sorted
func (s *Store) branchnames() []string {
    dentryv, err := os.ReadDir(filepath.Join(s.ctl, "branches"))
    raiseif(err)
    namev := []string{}
    for _, dentry := range dentryv {
        name := dentry.Name()
        if strings.Contains(name, ".tmp") {
            continue // xwritefile leftover from a crashed run
        }
        namev = append(namev, name)
    }
    sort.Strings(namev)
    return namev
}

// -------- commit records --------

// immutable record of one snapshot
type Commit struct {
    id     Sha1
    parent Sha1 // null for root commits
    msg    string
    ts     float64 // seconds since epoch, fractional
}

func (s *Store) havecommit(id Sha1) bool {
    _, err := os.Stat(s.metapath(id))
    return err == nil
}

// load commit record; error (not raise) if no such commit or record invalid
// - resolver and ancestors probe with it and attach their own context.
func (s *Store) loadcommit(id Sha1) (*Commit, error) {
    data, err := os.ReadFile(s.metapath(id))
    if err != nil {
        return nil, err
    }

    c := &Commit{id: id}
    seen := StrSet{}
    for _, line := range splitlines(String(data), "\n") {
        key, value, err := headtail(line, " ")
        if err != nil {
            // "parent" alone - root commit
            key, value = line, ""
        }
        if seen.Contains(key) {
            return nil, fmt.Errorf("commit %s: duplicate %q in record", id, key)
        }
        seen.Add(key)
        switch key {
        case "parent":
            if value != "" {
                c.parent, err = Sha1Parse(value)
                if err != nil {
                    return nil, fmt.Errorf("commit %s: invalid parent %q", id, value)
                }
            }
        case "ts":
            c.ts, err = strconv.ParseFloat(value, 64)
            if err != nil {
                return nil, fmt.Errorf("commit %s: invalid ts %q", id, value)
            }
        case "msg":
            c.msg = unescapemsg(value)
        default:
            return nil, fmt.Errorf("commit %s: unknown field %q", id, key)
        }
    }
    if !seen.Contains("ts") || !seen.Contains("msg") {
        return nil, fmt.Errorf("commit %s: incomplete record", id)
    }
    return c, nil
}

// like loadcommit, but raise CorruptHistory on problems
func (s *Store) xloadcommit(id Sha1) *Commit {
    c, err := s.loadcommit(id)
    if err != nil {
        raise(&CorruptHistory{id, err})
    }
    return c
}

func (s *Store) writecommit(c *Commit) {
    parent := ""
    if !c.parent.IsNull() {
        parent = c.parent.String()
    }
    record := fmt.Sprintf("parent %s\nts %.9f\nmsg %s\n", parent, c.ts, escapemsg(c.msg))
    xwritefile(s.metapath(c.id), record)
}

// all commit ids present on disk, unordered
func (s *Store) commitids() []Sha1 {
    dentryv, err := os.ReadDir(filepath.Join(s.ctl, "commit-meta"))
    raiseif(err)
    idv := []Sha1{}
    for _, dentry := range dentryv {
        id, err := Sha1Parse(dentry.Name())
        if err != nil {
            continue // e.g. xwritefile leftover
        }
        idv = append(idv, id)
    }
    return idv
}

// commit msg is stored on a single record line - escape newlines and the
// escape character itself
func escapemsg(msg string) string {
    msg = strings.ReplaceAll(msg, `\`, `\\`)
    msg = strings.ReplaceAll(msg, "\n", `\n`)
    return msg
}

func unescapemsg(msg string) string {
    out := make([]byte, 0, len(msg))
    for i := 0; i < len(msg); i++ {
        c := msg[i]
        if c == '\\' && i+1 < len(msg) {
            i++
            switch msg[i] {
            case 'n':
                c = '\n'
            default:
                c = msg[i]
            }
        }
        out = append(out, c)
    }
    return String(out)
}
