// Package dotenv reads and writes the .env files handed to docker compose
// stacks.  Parsing is godotenv's; writing keeps simple values bare so the
// files stay readable, picks a quoting form godotenv reads back exactly,
// and replaces files atomically with owner-only permissions.
package dotenv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yanizio/tphub/internal/fsutil"
)

// Perm is the mode of every file this package writes.
const Perm os.FileMode = 0o600

var bareSafe = regexp.MustCompile(`^[a-zA-Z0-9_.:\-]+$`)

// ErrUnencodable is returned for a value no quoting form reads back
// unchanged: one that ends in a backslash, or one that needs the
// double-quoted form and ends in a double quote.
var ErrUnencodable = errors.New("value cannot be written to a .env file without loss")

// Encode renders one NAME=value line without a trailing newline.  Simple
// values stay bare.  Others are single-quoted, which godotenv and compose
// read literally, or, when the value holds a single quote or a line break,
// written in godotenv's double-quoted form.
func Encode(name, value string) (string, error) {
	switch {
	case bareSafe.MatchString(value):
		return name + "=" + value, nil
	case strings.HasSuffix(value, `\`):
		return "", ErrUnencodable
	case !strings.ContainsAny(value, "'\n\r"):
		return name + "='" + value + "'", nil
	case strings.HasSuffix(value, `"`):
		// godotenv trims every trailing quote, escaped or not.
		return "", ErrUnencodable
	}
	return godotenv.Marshal(map[string]string{name: value})
}

// Marshal renders data sorted by name, one line per entry, newline
// terminated.
func Marshal(data map[string]string) (string, error) {
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		line, err := Encode(k, data[k])
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", k, err)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Unmarshal parses .env content.
func Unmarshal(content string) (map[string]string, error) {
	return godotenv.Parse(strings.NewReader(content))
}

// Load reads the .env file at path.
func Load(fsys afero.Fs, path string) (map[string]string, error) {
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	return godotenv.Parse(bytes.NewReader(raw))
}

// Save atomically replaces path with data.
func Save(fsys afero.Fs, path string, data map[string]string) error {
	content, err := Marshal(data)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFile(fsys, path, Perm, func(w io.Writer) error {
		_, err := io.WriteString(w, content)
		return err
	}, nil); err != nil {
		zap.S().Errorw("dotenv save failed", "file", path, "err", err)
		return err
	}
	zap.S().Debugw("dotenv saved", "file", path, "keys", len(data))
	return nil
}

// Update overlays update on the file at path (a missing file counts as
// empty), saves it, and returns the merged content.
func Update(fsys afero.Fs, path string, update map[string]string) (map[string]string, error) {
	data, err := Load(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	for k, v := range update {
		data[k] = v
	}
	if err := Save(fsys, path, data); err != nil {
		return nil, err
	}
	return data, nil
}
