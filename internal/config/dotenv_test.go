package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeDotEnv creates ~/.coach/.env under a fresh home and returns its path.
func writeDotEnv(t *testing.T, body string) string {
	t.Helper()
	home := setHome(t)
	p := filepath.Join(home, ".coach", ".env")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDotEnv_NotExist(t *testing.T) {
	setHome(t)

	m, err := LoadDotEnv()
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}
}

func TestParseDotEnv(t *testing.T) {
	body := strings.Join([]string{
		"# comment",
		"",
		"A=1",
		"export B=two",
		`C="quoted # kept"`,
		"D='single'",
		"E=plain # trailing",
		"=novalue",
		"garbage",
		"F=",
	}, "\n")

	m, err := parseDotEnv(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parseDotEnv: %v", err)
	}
	want := map[string]string{
		"A": "1",
		"B": "two",
		"C": "quoted # kept",
		"D": "single",
		"E": "plain",
		"F": "",
	}
	if len(m) != len(want) {
		t.Fatalf("got %v, want %v", m, want)
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s = %q, want %q", k, m[k], v)
		}
	}
}

func TestGetConfigValue_EnvOverridesDotEnv(t *testing.T) {
	writeDotEnv(t, "K=fromdotenv\nOTHER=fromdotenv\n")
	t.Setenv("K", "fromenv")
	t.Setenv("OTHER", "")

	if v, err := GetConfigValue("K"); err != nil || v != "fromenv" {
		t.Fatalf("expected env override, got %q (%v)", v, err)
	}
	if v, err := GetConfigValue("OTHER"); err != nil || v != "fromdotenv" {
		t.Fatalf("empty env should fall back to dotenv, got %q (%v)", v, err)
	}
}

func TestEnsureDotEnvTemplate_DoesNotOverwrite(t *testing.T) {
	p := writeDotEnv(t, "COACH_EMBEDDINGS_PROVIDER=keep\n")

	if err := EnsureDotEnvTemplate(); err != nil {
		t.Fatalf("EnsureDotEnvTemplate: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "COACH_EMBEDDINGS_PROVIDER=keep\n" {
		t.Fatalf("template overwrote existing file: %q", string(b))
	}
}

func TestEnsureDotEnvTemplate_ListsEveryKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("COACH_HOME", filepath.Join(home, "custom"))

	if err := EnsureDotEnvTemplate(); err != nil {
		t.Fatalf("EnsureDotEnvTemplate: %v", err)
	}
	m, err := LoadDotEnv()
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range EnvKeys {
		v, ok := m[k.Name]
		if !ok || v != "" {
			t.Fatalf("template entry %s = %q, present=%v", k.Name, v, ok)
		}
	}
}
