package configs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ReadSession returns the session string. STRING_SESSION wins over the session file.
func ReadSession(e *Env) (string, error) {
	if s := strings.TrimSpace(e.StringSession); s != "" {
		return s, nil
	}
	if e.SessionFile == "" {
		return "", errors.Wrap(ErrMissingCredential, "STRING_SESSION is required")
	}

	data, err := os.ReadFile(e.SessionFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(ErrMissingCredential, "STRING_SESSION is empty and %s does not exist", e.SessionFile)
		}
		return "", errors.Wrap(err, "failed to read session file")
	}

	s := strings.TrimSpace(string(data))
	if s == "" {
		return "", errors.Wrapf(ErrMissingCredential, "session file %s is empty", e.SessionFile)
	}
	return s, nil
}

// WriteSession stores the session string in a file only the owner can read.
// An existing file is replaced, not rewritten in place, so its old mode does
// not survive.
func WriteSession(path, session string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrap(err, "failed to create session directory")
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create session file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strings.TrimSpace(session) + "\n"); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write session file")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to restrict session file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to write session file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "failed to replace session file")
	}
	return nil
}
