// Package secrets loads the three credentials the receptionist needs at
// startup: the model API key, the notification email account and its app
// password.
//
// Values come from the process environment. An optional dotenv file is read
// first; variables that are already set in the environment take precedence.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissingSecret is wrapped by [Load] for every secret that is unset or empty.
var ErrMissingSecret = errors.New("secrets: missing secret")

// Names holds the environment variable names of the three secrets.
type Names struct {
	APIKey   string
	Account  string
	Password string
}

// DefaultNames are the variable names used when none are configured.
var DefaultNames = Names{
	APIKey:   "GOOGLE_API_KEY",
	Account:  "MY_GMAIL",
	Password: "APP_PASSWORD",
}

// Secrets is the loaded, read-only credential set.
type Secrets struct {
	APIKey   string
	Account  string
	Password string
}

// LogValue implements slog.LogValuer so secrets never reach the logs verbatim.
func (s Secrets) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("api_key", redact(s.APIKey)),
		slog.String("account", s.Account),
		slog.String("password", redact(s.Password)),
	)
}

// LoadDotenv reads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("secrets: dotenv file not found, using environment only", "path", path)
			return nil
		}
		return fmt.Errorf("secrets: load dotenv %q: %w", path, err)
	}
	slog.Debug("secrets: dotenv file loaded", "path", path)
	return nil
}

// Load reads all three secrets using lookup (usually [os.LookupEnv]). Every
// missing value is reported; the returned error joins one [ErrMissingSecret]
// per absent name.
func Load(names Names, lookup func(string) (string, bool)) (Secrets, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	names = names.withDefaults()

	var errs []error
	get := func(name string) string {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingSecret, name))
		}
		return v
	}

	s := Secrets{
		APIKey:   get(names.APIKey),
		Account:  get(names.Account),
		Password: get(names.Password),
	}
	if err := errors.Join(errs...); err != nil {
		return Secrets{}, err
	}
	return s, nil
}

func (n Names) withDefaults() Names {
	if n.APIKey == "" {
		n.APIKey = DefaultNames.APIKey
	}
	if n.Account == "" {
		n.Account = DefaultNames.Account
	}
	if n.Password == "" {
		n.Password = DefaultNames.Password
	}
	return n
}

// redact reports only whether a secret is set. No characters of the value
// are kept.
func redact(v string) string {
	if v == "" {
		return "(unset)"
	}
	return "[redacted]"
}
