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

// Tarit | Miscellaneous utilities
package main

import (
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "lab.nexedi.com/kirr/go123/exc"
    "lab.nexedi.com/kirr/go123/mem"
    "lab.nexedi.com/kirr/go123/my"
)

// exception-style error handling, as in go123/exc
type Error = exc.Error

func raise(arg interface{})             { exc.Raise(arg) }
func raisef(f string, a ...interface{}) { exc.Raisef(f, a...) }
func raiseif(err error)                 { exc.Raiseif(err) }
func errcatch(f func(e *Error))         { exc.Catch(f) }
func aserror(v interface{}) *Error      { return exc.Aserror(v) }

func erraddcontext(e *Error, arg interface{}) *Error {
    return exc.Addcontext(e, arg)
}

func erraddcallingcontext(topfunc string, e *Error) *Error {
    return exc.Addcallingcontext(topfunc, e)
}

func myfuncname() string { return my.FuncName() }

// string <-> []byte without copying
func String(b []byte) string { return mem.String(b) }
func Bytes(s string) []byte  { return mem.Bytes(s) }

// split string into lines. The last line, if it is empty, is omitted from the result
// (rationale is: string.Split("hello\nworld\n", "\n") -> ["hello", "world", ""])
func splitlines(s, sep string) []string {
    sv := strings.Split(s, sep)
    l := len(sv)
    if l > 0 && sv[l-1] == "" {
        sv = sv[:l-1]
    }
    return sv
}

// (head+sep+tail) -> head, tail
func headtail(s, sep string) (head, tail string, err error) {
    parts := strings.SplitN(s, sep, 2)
    if len(parts) != 2 {
        return "", "", fmt.Errorf("headtail: %q has no %q", s, sep)
    }
    return parts[0], parts[1], nil
}

// write file so that the write is atomically visible: first to temporary
// alongside path, then rename over. Control-directory metadata (HEAD,
// branches/*, commit-meta/*) is updated only this way.
func xwritefile(path string, data string) {
    dir, base := filepath.Split(path)
    tmp, err := os.CreateTemp(dir, base+".tmp")
    raiseif(err)
    tmppath := tmp.Name()
    _, err = tmp.WriteString(data)
    err2 := tmp.Close()
    if err == nil {
        err = err2
    }
    if err == nil {
        err = os.Rename(tmppath, path)
    }
    if err != nil {
        os.Remove(tmppath)
        raise(err)
    }
}

// read one-line UTF-8 newline-terminated file -> line without trailing \n
func xreadline(path string) string {
    data, err := os.ReadFile(path)
    raiseif(err)
    return strings.TrimSuffix(String(data), "\n")
}

// copy regular file contents src -> dst (no mode/owner preservation - used
// only for snapshot-state files inside the control directory)
func copyfile(src, dst string) error {
    data, err := os.ReadFile(src)
    if err != nil {
        return err
    }
    return os.WriteFile(dst, data, 0666)
}
