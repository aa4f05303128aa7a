// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path"
	"path/filepath"
	"testing"
)

type classWriter struct {
	bytes.Buffer
}

func (w *classWriter) u1(v uint8)  { w.WriteByte(v) }
func (w *classWriter) u2(v uint16) { binary.Write(&w.Buffer, binary.BigEndian, v) }
func (w *classWriter) u4(v uint32) { binary.Write(&w.Buffer, binary.BigEndian, v) }
func (w *classWriter) utf8(s string) {
	w.u1(1)
	w.u2(uint16(len(s)))
	w.WriteString(s)
}

// ClassBytes returns a valid Java 8 class file declaring a public class with
// the given internal name, extending java/lang/Object, with one int field
// "value" and a default constructor.
func ClassBytes(name string) []byte {
	var w classWriter
	w.u4(0xCAFEBABE)
	w.u2(0)
	w.u2(52)

	// constant pool
	w.u2(15)
	w.utf8(name)               // 1
	w.u1(7)                    // 2 Class #1
	w.u2(1)                    //
	w.utf8("java/lang/Object") // 3
	w.u1(7)                    // 4 Class #3
	w.u2(3)                    //
	w.utf8("<init>")           // 5
	w.utf8("()V")              // 6
	w.utf8("Code")             // 7
	w.u1(12)                   // 8 NameAndType #5:#6
	w.u2(5)                    //
	w.u2(6)                    //
	w.u1(10)                   // 9 Methodref #4.#8
	w.u2(4)                    //
	w.u2(8)                    //
	w.utf8("SourceFile")       // 10
	w.utf8(path.Base(name) + ".java") // 11
	w.utf8("value") // 12
	w.utf8("I")     // 13
	w.utf8("hello") // 14

	w.u2(0x0021) // public super
	w.u2(2)
	w.u2(4)
	w.u2(0) // interfaces

	w.u2(1) // fields
	w.u2(0x0002)
	w.u2(12)
	w.u2(13)
	w.u2(0)

	w.u2(1) // methods
	w.u2(0x0001)
	w.u2(5)
	w.u2(6)
	w.u2(1)
	w.u2(7)
	w.u4(17)
	w.u2(1) // max stack
	w.u2(1) // max locals
	w.u4(5)
	w.u1(0x2a)       // aload_0
	w.u1(0xb7)       // invokespecial #9
	w.u2(9)          //
	w.u1(0xb1)       // return
	w.u2(0)          // exception table
	w.u2(0)          // code attributes

	w.u2(1) // class attributes
	w.u2(10)
	w.u4(2)
	w.u2(11)
	return w.Bytes()
}

// WriteJar writes entries into a ZIP file under dir and returns its path.
// Keys ending in "/" are written as directory entries.
func WriteJar(t testing.TB, dir, name string, entries map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for key, data := range entries {
		w, err := zw.Create(key)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", key, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write zip entry %s: %v", key, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	out := filepath.Join(dir, name)
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write jar: %v", err)
	}
	return out
}
