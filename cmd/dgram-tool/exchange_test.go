// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
)

// recordingConn records each written datagram.
type recordingConn struct {
	written [][]byte
}

func (rc *recordingConn) WriteDatagram(data []byte) error {
	rc.written = append(rc.written, data)
	return nil
}

func (rc *recordingConn) ReadDatagram() ([]byte, error) { return nil, errors.New("closed") }
func (rc *recordingConn) RemoteErrors() <-chan error { return nil }
func (rc *recordingConn) Close() {}

func TestExchangeSendFile(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		sent bool
	}{
		{"content", []byte("hello"), true},
		{"empty", []byte{}, true},
		{"too-large", make([]byte, maxFileSize+1), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			con := &recordingConn{}
			ex := &exchange{dir: t.TempDir(), con: con}

			path := filepath.Join(ex.dir, test.name)
			if err := os.WriteFile(path, test.data, 0600); err != nil {
				t.Fatal(err)
			}

			ex.onFileEvent(fsnotify.Event{Name: path, Op: fsnotify.Create})

			switch {
			case !test.sent && len(con.written) != 0:
				t.Fatalf("file was sent %d times", len(con.written))
			case test.sent && len(con.written) != 1:
				t.Fatalf("expected one datagram, got %d", len(con.written))
			case test.sent && !bytes.Equal(con.written[0], test.data):
				t.Fatalf("unexpected datagram %x", con.written[0])
			}
		})
	}
}

func TestExchangeWriteDatagram(t *testing.T) {
	ex := &exchange{dir: t.TempDir()}

	ex.writeDatagram([]byte("hello"))

	entries, err := os.ReadDir(ex.dir)
	if err != nil {
		t.Fatal(err)
	} else if len(entries) != 1 {
		t.Fatalf("expected exactly one file, got %d", len(entries))
	}

	name := entries[0].Name()
	if data, err := os.ReadFile(filepath.Join(ex.dir, name)); err != nil {
		t.Fatal(err)
	} else if !bytes.Equal(data, []byte("hello")) {
		t.Fatalf("unexpected content %q", data)
	}

	if _, known := ex.written.Load(name); !known {
		t.Fatal("written file is not marked as received")
	}

	// The creation event of a received datagram must not send it back.
	ex.onFileEvent(fsnotify.Event{Name: filepath.Join(ex.dir, name), Op: fsnotify.Create})
	if _, known := ex.written.Load(name); known {
		t.Fatal("received datagram is still marked after its creation event")
	}
}

func TestExchangeIgnoredEvents(t *testing.T) {
	ex := &exchange{dir: t.TempDir()}

	// Neither of these events reaches sendFile, which would dereference the missing connector.
	ex.onFileEvent(fsnotify.Event{Name: filepath.Join(ex.dir, "file"), Op: fsnotify.Write})
	ex.onFileEvent(fsnotify.Event{Name: filepath.Join(ex.dir, tmpPrefix+"123"), Op: fsnotify.Create})
}
