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

// Tarit | Sha1 type to work with commit identifiers
package main

import (
    "bytes"
    "crypto/sha1"
    "encoding/hex"
    "fmt"
    "strings"
)

const SHA1_RAWSIZE = 20

// SHA1 value in raw form
// NOTE zero value of Sha1{} is NULL sha1
// NOTE Sha1 size is 20 bytes. On amd64
//      - string size = 16 bytes
//      - slice  size = 24 bytes
//      -> so it is reasonable to pass Sha1 not by reference
type Sha1 struct {
    sha1 [SHA1_RAWSIZE]byte
}

// fmt.Stringer
var _ fmt.Stringer = Sha1{}

func (sha1 Sha1) String() string {
    return hex.EncodeToString(sha1.sha1[:])
}

// first 7 hex digits - the way commits are displayed in log and infos
func (sha1 Sha1) Short() string {
    return sha1.String()[:7]
}

func Sha1Parse(sha1str string) (Sha1, error) {
    sha1 := Sha1{}
    if hex.DecodedLen(len(sha1str)) != SHA1_RAWSIZE {
        return Sha1{}, fmt.Errorf("sha1parse: %q invalid", sha1str)
    }
    _, err := hex.Decode(sha1.sha1[:], Bytes(sha1str))
    if err != nil {
        return Sha1{}, fmt.Errorf("sha1parse: %q invalid: %s", sha1str, err)
    }

    return sha1, nil
}

// check whether sha1 is null
func (sha1 *Sha1) IsNull() bool {
    return *sha1 == Sha1{}
}

// generate identifier for a new commit.
//
// The id is derived from parent id (null for root commits), commit message
// and timestamp salt - so it is unique in practice and stable: re-reading
// the commit record always yields the same id. The exact bytes hashed are
// fixed so that different tarit versions generate interoperable ids.
func Sha1Gen(parent Sha1, msg string, ts float64) Sha1 {
    parentstr := "none"
    if !parent.IsNull() {
        parentstr = parent.String()
    }
    h := sha1.New()
    fmt.Fprintf(h, "%s\n%s\n%.9f", parentstr, msg, ts)
    out := Sha1{}
    copy(out.sha1[:], h.Sum(nil))
    return out
}

// whether s is a lowercase hex string (candidate for id or id prefix)
func ishex(s string) bool {
    if s == "" {
        return false
    }
    for i := 0; i < len(s); i++ {
        c := s[i]
        if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
            return false
        }
    }
    return true
}

// whether hex prefix matches sha1
func (sha1 Sha1) HasHexPrefix(prefix string) bool {
    return strings.HasPrefix(sha1.String(), prefix)
}

// for sorting by Sha1
type BySha1 []Sha1

func (p BySha1) Len() int           { return len(p) }
func (p BySha1) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p BySha1) Less(i, j int) bool { return bytes.Compare(p[i].sha1[:], p[j].sha1[:]) < 0 }
