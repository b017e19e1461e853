package logparse

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chatvault/chatvault/internal/model"
)

// TextFileParser scans a Gaim-style log tree:
//
//	<root>/<service>/<local>/<remote>/<yyyy-MM-dd.HHmmss>.txt
//
// Each file is one conversation; a ".chat" suffix on the remote directory
// marks a conference. Lines look like
//
//	(15:04:05) Sender: text
//	(15:04:05) system text
//
// Lines that do not match are folded into the previous event's text.
type TextFileParser struct{}

const fileStampLayout = "2006-01-02.150405"

func (TextFileParser) Scan(root string) ([]ConversationLocation, error) {
	var locs []ConversationLocation
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".txt") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 4 {
			return nil
		}
		stamp := strings.TrimSuffix(parts[len(parts)-1], ".txt")
		date, err := time.ParseInLocation(fileStampLayout, stamp, time.Local)
		if err != nil {
			return fmt.Errorf("%w: bad log file stamp %q", model.ErrParse, stamp)
		}
		remote := parts[len(parts)-2]
		locs = append(locs, ConversationLocation{
			Path:       path,
			Service:    parts[len(parts)-4],
			LocalHint:  parts[len(parts)-3],
			RemoteHint: strings.TrimSuffix(remote, ".chat"),
			Date:       date,
			Conference: strings.HasSuffix(remote, ".chat"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locs, nil
}

func (TextFileParser) Read(loc ConversationLocation) (EventReader, error) {
	f, err := os.Open(loc.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	return &textReader{f: f, scan: bufio.NewScanner(f), day: loc.Date}, nil
}

type textReader struct {
	f    *os.File
	scan *bufio.Scanner
	day  time.Time

	pending *RawEvent
	done    bool
}

func (r *textReader) Next() (RawEvent, error) {
	for {
		if r.done {
			return r.take()
		}
		if !r.scan.Scan() {
			r.done = true
			if err := r.scan.Err(); err != nil {
				return RawEvent{}, fmt.Errorf("%w: %v", model.ErrParse, err)
			}
			continue
		}
		line := r.scan.Text()
		ev, ok := r.parseLine(line)
		if !ok {
			// Continuation of a multi-line message.
			if r.pending != nil {
				r.pending.Text += "\n" + line
			}
			continue
		}
		if r.pending != nil {
			out := *r.pending
			r.pending = &ev
			return out, nil
		}
		r.pending = &ev
	}
}

func (r *textReader) take() (RawEvent, error) {
	if r.pending != nil {
		out := *r.pending
		r.pending = nil
		return out, nil
	}
	return RawEvent{}, io.EOF
}

func (r *textReader) parseLine(line string) (RawEvent, bool) {
	if !strings.HasPrefix(line, "(") {
		return RawEvent{}, false
	}
	end := strings.Index(line, ") ")
	if end < 0 {
		return RawEvent{}, false
	}
	clock, err := time.Parse("15:04:05", line[1:end])
	if err != nil {
		return RawEvent{}, false
	}
	date := time.Date(r.day.Year(), r.day.Month(), r.day.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, r.day.Location())
	rest := line[end+2:]

	if sender, text, ok := strings.Cut(rest, ": "); ok && !strings.Contains(sender, " ") {
		return RawEvent{Date: date, Kind: Regular, Sender: sender, Text: text}, true
	}
	switch {
	case strings.HasSuffix(rest, " entered the room."):
		name := strings.TrimSuffix(rest, " entered the room.")
		return RawEvent{Date: date, Kind: ConferenceJoin, Sender: name, Text: rest}, true
	case strings.HasSuffix(rest, " left the room."):
		name := strings.TrimSuffix(rest, " left the room.")
		return RawEvent{Date: date, Kind: ConferenceLeave, Sender: name, Text: rest}, true
	default:
		return RawEvent{Date: date, Kind: System, Text: rest}, true
	}
}

func (r *textReader) Close() error { return r.f.Close() }
