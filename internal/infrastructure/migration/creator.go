package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// versionLayout keeps versions sortable as plain integers
const versionLayout = "20060102150405"

var (
	// ErrEmptyName is returned when a migration name sanitizes to nothing
	ErrEmptyName = errors.New("migration: name is empty")
	// ErrMissingDown is returned by Scan when an up file has no down pair
	ErrMissingDown = errors.New("migration: missing down file")

	fileNamePattern = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)
	unsafeChars     = regexp.MustCompile(`[^a-z0-9]+`)
)

var fileTemplate = template.Must(template.New("migration").Parse(`-- Migration: {{.Name}}{{if .Down}} (rollback){{end}}
-- Description: {{.Description}}

`))

// File describes one migration pair
type File struct {
	Version     uint64
	Name        string
	Description string
	UpPath      string
	DownPath    string
}

// Create writes an empty up/down pair named after name into dir. The version
// is the UTC time formatted as YYYYMMDDHHMMSS.
func Create(dir, name, description string, now time.Time) (*File, error) {
	slug := Slug(name)
	if slug == "" {
		return nil, ErrEmptyName
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations dir: %w", err)
	}

	stamp := now.UTC().Format(versionLayout)
	version, _ := strconv.ParseUint(stamp, 10, 64)
	base := filepath.Join(dir, stamp+"_"+slug)
	f := &File{
		Version:     version,
		Name:        slug,
		Description: description,
		UpPath:      base + ".up.sql",
		DownPath:    base + ".down.sql",
	}

	if err := writeTemplate(f.UpPath, f, false); err != nil {
		return nil, err
	}
	if err := writeTemplate(f.DownPath, f, true); err != nil {
		_ = os.Remove(f.UpPath)
		return nil, err
	}
	return f, nil
}

func writeTemplate(path string, f *File, down bool) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer out.Close()

	data := struct {
		Name        string
		Description string
		Down        bool
	}{f.Name, f.Description, down}
	if err := fileTemplate.Execute(out, data); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Slug lowercases name and collapses every run of other characters to one underscore
func Slug(name string) string {
	return strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// Scan lists the migration pairs in fsys ordered by version. Files that do not
// follow the naming scheme are ignored.
func Scan(fsys fs.FS) ([]File, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[uint64]*File)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := fileNamePattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		version, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			continue
		}
		f, ok := byVersion[version]
		if !ok {
			f = &File{Version: version, Name: match[2]}
			byVersion[version] = f
		}
		if match[3] == "up" {
			f.UpPath = e.Name()
		} else {
			f.DownPath = e.Name()
		}
	}

	files := make([]File, 0, len(byVersion))
	for _, f := range byVersion {
		if f.UpPath == "" {
			continue
		}
		if f.DownPath == "" {
			return nil, fmt.Errorf("%w for %s", ErrMissingDown, f.UpPath)
		}
		files = append(files, *f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}
