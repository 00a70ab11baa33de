package fetch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// State records the last successful download of a source
type State struct {
	Source       string
	URL          string
	ETag         string
	LastModified string // HTTP Last-Modified header, verbatim
	Fetched      time.Time
	Airspaces    int
	Bytes        int64
}

// String returns the state in a human-readable format
func (s State) String() string {
	return fmt.Sprintf("Source: %s, Fetched: %s, Airspaces: %d, Size: %d bytes",
		s.Source, s.Fetched.Format(time.RFC3339), s.Airspaces, s.Bytes)
}

// Age returns how long ago the source was fetched
func (s State) Age(now time.Time) time.Duration {
	if s.Fetched.IsZero() {
		return 0
	}
	return now.Sub(s.Fetched)
}

// ParseState parses a state file
// Format:
//
//	#comment line
//	source=openaip/ch
//	url=https\://...
//	etag="abc"
//	fetched=2024-01-15T12\:00\:00Z
//	airspaces=123
//	bytes=45678
func ParseState(r io.Reader) (*State, error) {
	state := &State{}
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.ReplaceAll(strings.TrimSpace(value), `\:`, ":")

		switch key {
		case "source":
			state.Source = value
		case "url":
			state.URL = value
		case "etag":
			state.ETag = value
		case "lastModified":
			state.LastModified = value
		case "fetched":
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return nil, fmt.Errorf("invalid fetch timestamp %q: %w", value, err)
			}
			state.Fetched = t
		case "airspaces":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid airspace count: %w", err)
			}
			state.Airspaces = n
		case "bytes":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid byte count: %w", err)
			}
			state.Bytes = n
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading state: %w", err)
	}

	return state, nil
}

// ParseStateFile reads and parses a state file from disk
func ParseStateFile(filename string) (*State, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseState(f)
}

func escape(s string) string {
	return strings.ReplaceAll(s, ":", `\:`)
}

// WriteState writes a state to a writer
func WriteState(w io.Writer, state *State) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# airspace-go fetch state\n")
	fmt.Fprintf(bw, "source=%s\n", state.Source)
	fmt.Fprintf(bw, "url=%s\n", escape(state.URL))
	if state.ETag != "" {
		fmt.Fprintf(bw, "etag=%s\n", state.ETag)
	}
	if state.LastModified != "" {
		fmt.Fprintf(bw, "lastModified=%s\n", escape(state.LastModified))
	}
	fmt.Fprintf(bw, "fetched=%s\n", escape(state.Fetched.UTC().Format(time.RFC3339)))
	fmt.Fprintf(bw, "airspaces=%d\n", state.Airspaces)
	fmt.Fprintf(bw, "bytes=%d\n", state.Bytes)
	return bw.Flush()
}

// WriteStateFile writes a state to a file via a temporary file and rename
func WriteStateFile(filename string, state *State) error {
	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteState(f, state); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filename)
}
