/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package stringutil

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unsafe"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StringBuilder used for string builder, and returns string
func StringBuilder(str ...string) string {
	var b strings.Builder
	for _, p := range str {
		b.WriteString(p)
	}
	return b.String() // no copying
}

// StringSplit used for string split, and returns array string
func StringSplit(str string, sep string) []string {
	return strings.Split(str, sep)
}

// StringJoin used for string join, and returns array string
func StringJoin(strs []string, sep string) string {
	return strings.Join(strs, sep)
}

// IsContainedString used for judge items whether is contained item, if contained, return true
func IsContainedString(items []string, item string) bool {
	for _, eachItem := range items {
		if item == eachItem {
			return true
		}
	}
	return false
}

// Sanitize turns a free-form name into a warehouse identifier: trimmed, with
// '-', '.' and whitespace mapped to '_', diacritics removed and lower-cased.
func Sanitize(name string) string {
	replaced := strings.Map(func(r rune) rune {
		if r == '-' || r == '.' || unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))

	// the chain keeps state, one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, replaced)
	if err != nil {
		stripped = replaced
	}
	return strings.ToLower(stripped)
}

// BytesToString used for bytes to string, reduce memory
// https://segmentfault.com/a/1190000037679588
func BytesToString(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// PathNotExistOrCreate used for the filepath is whether exist, if not exist, then create
func PathNotExistOrCreate(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		err = os.MkdirAll(path, os.ModePerm)
		if err != nil {
			return fmt.Errorf("file dir MkdirAll failed: %v", err)
		}
		return nil
	}
	return err
}
