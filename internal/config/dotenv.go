package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EnvKey documents one setting that may live in ~/.coach/.env.
type EnvKey struct {
	Name string
	Help string
}

// EnvKeys lists the settings written to a fresh dotenv template.
var EnvKeys = []EnvKey{
	{"COACH_EMBEDDINGS_PROVIDER", "openai | hashing (offline). Empty disables semantic indexing."},
	{"COACH_EMBEDDINGS_MODEL", "Model name for the openai provider, e.g. text-embedding-3-small."},
	{"COACH_EMBEDDINGS_API_KEY", "API key for the openai provider."},
	{"COACH_EMBEDDINGS_BASE_URL", "OpenAI-compatible endpoint; defaults to https://api.openai.com/v1."},
	{"COACH_EMBEDDINGS_DIM", "Vector size the provider returns; fitted to index.dimension when different."},
}

// DotEnvPath returns the path of coach's dotenv file.
func DotEnvPath() (string, error) {
	coachDir, err := CoachDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(coachDir, ".env"), nil
}

// LoadDotEnv reads the dotenv file. A missing file yields an empty map.
func LoadDotEnv() (map[string]string, error) {
	p, err := DotEnvPath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot open dotenv file %s: %w", p, err)
	}
	defer f.Close()

	out, err := parseDotEnv(f)
	if err != nil {
		return nil, fmt.Errorf("cannot read dotenv file %s: %w", p, err)
	}
	return out, nil
}

// parseDotEnv accepts KEY=VALUE lines with an optional "export " prefix.
// Values wrapped in matching single or double quotes are unwrapped verbatim;
// unquoted values lose a trailing " # comment". Blank lines, comment lines
// and lines without a key are skipped.
func parseDotEnv(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out[k] = dotEnvValue(strings.TrimSpace(v))
	}
	return out, scanner.Err()
}

func dotEnvValue(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	if i := strings.Index(v, " #"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v
}

// GetConfigValue returns key from the process environment, falling back to
// the dotenv file. An empty environment variable counts as unset.
func GetConfigValue(key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	dotenv, err := LoadDotEnv()
	if err != nil {
		return "", err
	}
	return dotenv[key], nil
}

// EnsureDotEnvTemplate writes a dotenv file listing EnvKeys with empty
// values. An existing file is left untouched.
func EnsureDotEnvTemplate() error {
	p, err := DotEnvPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("cannot stat dotenv file %s: %w", p, err)
	}

	var b strings.Builder
	for _, k := range EnvKeys {
		fmt.Fprintf(&b, "# %s\n%s=\n", k.Help, k.Name)
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("cannot write dotenv template %s: %w", p, err)
	}
	return nil
}
