package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// fallbackFile serves secrets from a local key=value file when Secret Manager is not reachable. Keys are
// unversioned secret references and every version of a secret resolves to the same local value. The file
// is read once.
type fallbackFile struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

func (f *fallbackFile) lookup(ref reference) (string, bool, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.values[ref.key]
	return v, ok, nil
}

func (f *fallbackFile) load() {
	f.values = map[string]string{}
	if strings.TrimSpace(f.path) == "" {
		return
	}
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		f.err = fmt.Errorf("secrets: open fallback file: %w", err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		ref, err := parseReference(k)
		if err != nil {
			continue
		}
		f.values[ref.key] = strings.TrimSpace(v)
	}
	if err := scanner.Err(); err != nil {
		f.err = fmt.Errorf("secrets: read fallback file: %w", err)
	}
}
