// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package gamelog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// FileWatcher tails output_log_*.txt files in a directory and turns the
// known line shapes into raw tuples. Each Get call reads only the bytes
// appended since the previous one; truncated or rotated files restart
// from zero.
type FileWatcher struct {
	dir string

	mu      sync.Mutex
	offsets map[string]int64
}

// NewFileWatcher creates a watcher over dir. The directory does not have
// to exist yet; an absent directory yields empty batches.
func NewFileWatcher(dir string) *FileWatcher {
	return &FileWatcher{
		dir:     dir,
		offsets: make(map[string]int64),
	}
}

var logLineRe = regexp.MustCompile(
	`^(\d{4})\.(\d{2})\.(\d{2}) (\d{2}:\d{2}:\d{2}) [^-]*-\s+(.*)$`)

// Get implements Watcher.
func (w *FileWatcher) Get() ([][]string, error) {
	names, err := filepath.Glob(filepath.Join(w.dir, "output_log_*.txt"))
	if err != nil {
		return nil, fmt.Errorf("gamelog: glob: %w", err)
	}
	sort.Strings(names)

	w.mu.Lock()
	defer w.mu.Unlock()

	var tuples [][]string
	for _, path := range names {
		batch, err := w.readFileLocked(path)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, batch...)
	}
	return tuples, nil
}

// Reset implements Watcher. Offsets snap to the current file ends, so
// history already on disk is not replayed.
func (w *FileWatcher) Reset() error {
	names, err := filepath.Glob(filepath.Join(w.dir, "output_log_*.txt"))
	if err != nil {
		return fmt.Errorf("gamelog: glob: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.offsets = make(map[string]int64)
	for _, path := range names {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		w.offsets[filepath.Base(path)] = info.Size()
	}
	return nil
}

func (w *FileWatcher) readFileLocked(path string) ([][]string, error) {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gamelog: open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("gamelog: stat %s: %w", name, err)
	}
	offset := w.offsets[name]
	if offset > info.Size() {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("gamelog: seek %s: %w", name, err)
	}

	var tuples [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	read := offset
	for scanner.Scan() {
		line := scanner.Text()
		read += int64(len(scanner.Bytes())) + 1
		if tuple := parseLine(name, line); tuple != nil {
			tuples = append(tuples, tuple)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("gamelog: read %s: %w", name, err)
	}
	w.offsets[name] = read
	return tuples, nil
}

// parseLine maps one raw log line onto a tuple, or nil when the line is
// not one of the tracked shapes.
func parseLine(fileName, line string) []string {
	m := logLineRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	dt := fmt.Sprintf("%s-%s-%s %s", m[1], m[2], m[3], m[4])
	rest := strings.TrimSpace(m[5])

	tuple := func(entryType string, args ...string) []string {
		return append([]string{fileName, dt, entryType}, args...)
	}

	switch {
	case strings.HasPrefix(rest, "[Behaviour] Joining wrld_"):
		return tuple(TypeLocation, strings.TrimPrefix(rest, "[Behaviour] Joining "), "")
	case strings.HasPrefix(rest, "[Behaviour] Entering Room: "):
		return tuple(TypeEvent, rest)
	case strings.HasPrefix(rest, "[Behaviour] OnPlayerJoined "):
		name, userType := splitPlayerArg(strings.TrimPrefix(rest, "[Behaviour] OnPlayerJoined "))
		return tuple(TypePlayerJoined, name, userType)
	case strings.HasPrefix(rest, "[Behaviour] OnPlayerLeft "):
		name, _ := splitPlayerArg(strings.TrimPrefix(rest, "[Behaviour] OnPlayerLeft "))
		return tuple(TypePlayerLeft, name)
	case strings.HasPrefix(rest, "[Behaviour] Instantiated a (Clone [") && strings.Contains(rest, "Portal"):
		return tuple(TypePortalSpawn, "")
	case strings.HasPrefix(rest, "[Video Playback] Attempting to resolve URL '"):
		url := strings.TrimPrefix(rest, "[Video Playback] Attempting to resolve URL '")
		url = strings.TrimSuffix(url, "'")
		return tuple(TypeVideoPlay, url, "")
	case strings.HasPrefix(rest, "[API] Received Notification: "):
		return tuple(TypeNotification, strings.TrimPrefix(rest, "[API] Received Notification: "))
	default:
		return nil
	}
}

// splitPlayerArg splits "Display Name (usr_xxx)" into the name and a
// remote marker. Lines without the id suffix keep the whole value as the
// name.
func splitPlayerArg(s string) (name, userType string) {
	if i := strings.LastIndex(s, " (usr_"); i >= 0 && strings.HasSuffix(s, ")") {
		return s[:i], "remote"
	}
	return s, ""
}
