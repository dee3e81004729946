// Package inifile reads and writes the small INI dialect used by polyq.ini:
// [section] headers, key = value pairs, # and ; comments. Section and key
// names are case-insensitive; values keep their case.
package inifile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// File represents a parsed INI file.
type File struct {
	Sections []Section
}

// Section represents a named section in an INI file.
type Section struct {
	Name   string     // e.g., "migrate", "backend.primary"
	Line   int        // line of the header, 0 if built with Set
	Values []KeyValue // preserves order
}

// KeyValue represents a key-value pair.
type KeyValue struct {
	Key   string
	Value string
	Line  int
}

// ParseError reports a malformed line.
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Parse reads an INI file from the given reader. Keys outside a section,
// lines without '=' and unterminated headers are errors.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	var currentSection *Section

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, &ParseError{Line: lineNo, Text: line, Msg: "unterminated section header"}
			}
			name := strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			if name == "" {
				return nil, &ParseError{Line: lineNo, Text: line, Msg: "empty section name"}
			}
			f.Sections = append(f.Sections, Section{Name: name, Line: lineNo})
			currentSection = &f.Sections[len(f.Sections)-1]
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, &ParseError{Line: lineNo, Text: line, Msg: "expected key = value"}
		}
		if currentSection == nil {
			return nil, &ParseError{Line: lineNo, Text: line, Msg: "key outside of a section"}
		}

		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return nil, &ParseError{Line: lineNo, Text: line, Msg: "empty key"}
		}
		currentSection.Values = append(currentSection.Values, KeyValue{Key: key, Value: strings.TrimSpace(value), Line: lineNo})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// ParseFile reads and parses an INI file from disk.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parsed, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return parsed, nil
}

// Section returns the section with the given name (case-insensitive).
func (f *File) Section(name string) *Section {
	name = strings.ToLower(name)
	for i := range f.Sections {
		if f.Sections[i].Name == name {
			return &f.Sections[i]
		}
	}
	return nil
}

// Get returns the last value for a key in a section.
func (f *File) Get(section, key string) string {
	s := f.Section(section)
	if s == nil {
		return ""
	}
	return s.Get(key)
}

// Subsections returns the sections named "<parent>.<child>", keyed by
// child, in file order.
func (f *File) Subsections(parent string) []Section {
	prefix := strings.ToLower(parent) + "."
	var result []Section
	for _, s := range f.Sections {
		if child, ok := strings.CutPrefix(s.Name, prefix); ok && child != "" {
			s.Name = child
			result = append(result, s)
		}
	}
	return result
}

// Get returns the last value for a key (case-insensitive).
func (s *Section) Get(key string) string {
	v, _ := s.lookup(key)
	return v
}

func (s *Section) lookup(key string) (string, bool) {
	key = strings.ToLower(key)
	for i := len(s.Values) - 1; i >= 0; i-- {
		if s.Values[i].Key == key {
			return s.Values[i].Value, true
		}
	}
	return "", false
}

// Expand returns the value of key with $VAR and ${VAR} references
// replaced through lookup. A reference to an unset variable is an error,
// so a missing secret never yields a half-built URL.
func (s *Section) Expand(key string, lookup func(string) (string, bool)) (string, error) {
	var missing []string
	out := os.Expand(s.Get(key), func(name string) string {
		v, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("[%s] %s: unset variable %s", s.Name, key, strings.Join(missing, ", "))
	}
	return out, nil
}

// HasKey reports whether the section contains key, even with an empty value.
func (s *Section) HasKey(key string) bool {
	_, ok := s.lookup(key)
	return ok
}

// Set sets a key-value pair in the specified section.
// If the section doesn't exist, it is created.
// If the key already exists, its value is replaced.
func (f *File) Set(section, key, value string) {
	section = strings.ToLower(section)
	key = strings.ToLower(key)

	s := f.Section(section)
	if s == nil {
		f.Sections = append(f.Sections, Section{Name: section})
		s = &f.Sections[len(f.Sections)-1]
	}

	for i := range s.Values {
		if s.Values[i].Key == key {
			s.Values[i].Value = value
			return
		}
	}
	s.Values = append(s.Values, KeyValue{Key: key, Value: value})
}

// Write serializes f with a blank line between sections.
func (f *File) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i, section := range f.Sections {
		if i > 0 {
			bw.WriteByte('\n')
		}
		fmt.Fprintf(bw, "[%s]\n", section.Name)
		for _, kv := range section.Values {
			fmt.Fprintf(bw, "%s = %s\n", kv.Key, kv.Value)
		}
	}
	return bw.Flush()
}

// WriteFile writes f to path through a temporary file in the same
// directory, so readers never see a half-written config.
func (f *File) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
