package main

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-go/hashstate/internal/config"
	"github.com/vango-go/hashstate/internal/errors"
	"github.com/vango-go/hashstate/pkg/fragment"
	"github.com/vango-go/hashstate/pkg/hashstate"
	"github.com/vango-go/hashstate/pkg/mirror"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func errorCode(err error) string {
	var he *errors.Error
	if stderrors.As(err, &he) {
		return he.Code
	}
	return ""
}

func TestVersionShort(t *testing.T) {
	out, err := execute(t, "version", "--short")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("output = %q, want %q", out, version)
	}
}

func TestParse(t *testing.T) {
	out, err := execute(t, "parse", "https://example.com/app?x=1#page=2&q=go+lang")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != "page=2\nq=go lang\n" {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "parse", "--json", "#a=1")
	if err != nil {
		t.Fatalf("parse --json: %v", err)
	}
	if !strings.Contains(out, `"key": "a"`) || !strings.Contains(out, `"value": "1"`) {
		t.Errorf("json output = %q", out)
	}
}

func TestFragmentOf(t *testing.T) {
	tests := map[string]string{
		"https://a.example/p#x=1":  "x=1",
		"https://a.example/p":      "",
		"#x=1":                     "x=1",
		"x=1&y=2":                  "x=1&y=2",
		"https://a.example/#a#b=1": "a#b=1",
	}
	for in, want := range tests {
		if got := fragmentOf(in); got != want {
			t.Errorf("fragmentOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		decode  []string
		decoded string
	}{
		{
			name:    "string",
			args:    []string{"encode", "go lang"},
			want:    "go%20lang",
			decode:  []string{"decode", "go%20lang"},
			decoded: "go lang",
		},
		{
			name:    "json with key",
			args:    []string{"encode", "--codec=json", "--key=f", `{"a":1}`},
			want:    "f=%257B%2522a%2522%253A1%257D",
			decode:  []string{"decode", "--codec=json", "--key=f", "https://x.example/#f=%257B%2522a%2522%253A1%257D"},
			decoded: `{"a":1}`,
		},
		{
			name:    "base64json",
			args:    []string{"encode", "--codec=base64json", `[1,2]`},
			want:    "WzEsMl0",
			decode:  []string{"decode", "--codec=base64json", "WzEsMl0"},
			decoded: "[1,2]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if strings.TrimSpace(out) != tt.want {
				t.Errorf("encode = %q, want %q", out, tt.want)
			}

			out, err = execute(t, tt.decode...)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if strings.TrimSpace(out) != tt.decoded {
				t.Errorf("decode = %q, want %q", out, tt.decoded)
			}
		})
	}
}

func TestEncodeDecodeErrors(t *testing.T) {
	if _, err := execute(t, "encode", "--codec=xml", "v"); errorCode(err) != "H301" {
		t.Errorf("unknown codec: err = %v", err)
	}
	if _, err := execute(t, "encode", "--codec=json", "{not json"); errorCode(err) != "H303" {
		t.Errorf("invalid json: err = %v", err)
	}
	if _, err := execute(t, "decode", "%E0%A4%A"); errorCode(err) != "H302" {
		t.Errorf("malformed escape: err = %v", err)
	}
	if _, err := execute(t, "decode", "--key=missing", "#a=1"); errorCode(err) != "H302" {
		t.Errorf("missing key: err = %v", err)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "init", dir, "--format=toml")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	path := filepath.Join(dir, "hashstate.toml")
	if !strings.Contains(out, path) {
		t.Errorf("output %q does not name %s", out, path)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("starter config invalid: %v", err)
	}
	if b, ok := cfg.Binding("q"); !ok || b.Debounce != "300ms" || !b.Mirror {
		t.Errorf("binding q = %+v, %v", b, ok)
	}

	if _, err := execute(t, "init", dir, "--format=toml"); err == nil {
		t.Error("init over an existing file should fail without --force")
	}
	if _, err := execute(t, "init", dir, "--format=toml", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
	if _, err := execute(t, "init", dir, "--format=ini"); errorCode(err) != "H103" {
		t.Errorf("unknown format: err = %v", err)
	}
}

func TestAuthURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashstate.json")
	cfg := config.New()
	cfg.OAuth = config.OAuthConfig{Provider: "google", ClientID: "from-config", RedirectURI: "https://app.example.com"}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	out, err := execute(t, "auth-url", "-c", path, "--nonce=n1", "--state=s1")
	if err != nil {
		t.Fatalf("auth-url: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q, want URL and nonce", out)
	}
	for _, want := range []string{"accounts.google.com", "client_id=from-config", "nonce=n1", "state=s1"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("URL %q missing %q", lines[0], want)
		}
	}
	if lines[1] != "nonce: n1" {
		t.Errorf("nonce line = %q", lines[1])
	}

	out, err = execute(t, "auth-url", "-c", path, "--provider=apple", "--client-id=web")
	if err != nil {
		t.Fatalf("auth-url apple: %v", err)
	}
	if !strings.Contains(out, "appleid.apple.com") || !strings.Contains(out, "response_mode=form_post") {
		t.Errorf("apple URL = %q", out)
	}
}

func TestAuthURLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashstate.json")
	if err := config.New().SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	if _, err := execute(t, "auth-url", "-c", path, "--provider=github", "--client-id=x"); errorCode(err) != "H401" {
		t.Errorf("unknown provider: err = %v", err)
	}
	if _, err := execute(t, "auth-url", "-c", path, "--provider=google"); errorCode(err) != "H402" {
		t.Errorf("missing client id: err = %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if errorCode(err) != "H101" {
		t.Errorf("err = %v, want H101", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"k":"v"`) {
		t.Errorf("log output = %q", buf.String())
	}

	if _, err := newLogger(io.Discard, config.LogConfig{Level: "loud"}); errorCode(err) != "H104" {
		t.Errorf("bad level: err = %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBindAll(t *testing.T) {
	loc := fragment.NewMemoryLocation("https://app.example.com/#page=3")
	cfgs := []config.BindingConfig{
		{Key: "page", Codec: config.CodecString, Default: "1"},
		{Key: "filters", Codec: config.CodecJSON, Default: `{"tag":"go"}`},
		{Key: "view", Codec: config.CodecBase64JSON},
	}
	bindings, err := bindAll(cfgs, bindEnv{frag: fragment.New(loc), logger: discardLogger()})
	if err != nil {
		t.Fatalf("bindAll: %v", err)
	}
	defer func() {
		for _, b := range bindings {
			b.Close()
		}
	}()

	if len(bindings) != 3 {
		t.Fatalf("len = %d, want 3", len(bindings))
	}

	page := bindings[0].(*hashstate.Binding[string])
	if v, ok := page.Get(); !ok || v != "3" {
		t.Errorf("page = %q, %v, want fragment value", v, ok)
	}

	filters := bindings[1].(*hashstate.Binding[any])
	v, ok := filters.Get()
	m, isMap := v.(map[string]any)
	if !ok || !isMap || m["tag"] != "go" {
		t.Errorf("filters = %#v, %v, want default", v, ok)
	}

	if _, ok := bindings[2].(*hashstate.Binding[any]).Get(); ok {
		t.Error("view should be absent")
	}

	page.Set("4")
	if loc.Hash() != "page=4" {
		t.Errorf("Hash() = %q, want page=4", loc.Hash())
	}
}

func TestBindAllMirror(t *testing.T) {
	loc := fragment.NewMemoryLocation("https://app.example.com/")
	store := mirror.NewMemory()
	_ = store.Write("q", "from%20mirror")

	bindings, err := bindAll([]config.BindingConfig{{Key: "q", Mirror: true}}, bindEnv{
		frag:   fragment.New(loc),
		mirror: store,
		logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("bindAll: %v", err)
	}
	defer bindings[0].Close()

	if v, _ := bindings[0].(*hashstate.Binding[string]).Get(); v != "from mirror" {
		t.Errorf("q = %q, want mirror value", v)
	}
}

func TestBindAllErrors(t *testing.T) {
	env := bindEnv{frag: fragment.New(fragment.NewMemoryLocation("https://a/")), logger: discardLogger()}

	tests := []struct {
		bc   config.BindingConfig
		code string
	}{
		{config.BindingConfig{Key: "a", Codec: "xml"}, "H301"},
		{config.BindingConfig{Key: "a", Codec: config.CodecJSON, Default: "{"}, "H302"},
		{config.BindingConfig{Key: "a", Debounce: "soon"}, "H104"},
	}
	for _, tt := range tests {
		_, err := bindAll([]config.BindingConfig{{Key: "ok"}, tt.bc}, env)
		if errorCode(err) != tt.code {
			t.Errorf("bindAll(%+v) err = %v, want %s", tt.bc, err, tt.code)
		}
	}
}

func TestOriginChecker(t *testing.T) {
	if originChecker(nil) != nil {
		t.Error("no origins should keep the default check")
	}

	check := originChecker([]string{"https://app.example.com/"})
	req := httptest.NewRequest(http.MethodGet, "/_hashstate/ws", nil)
	req.Header.Set("Origin", "https://app.example.com")
	if !check(req) {
		t.Error("listed origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example.com")
	if check(req) {
		t.Error("unlisted origin allowed")
	}

	wildcard := originChecker([]string{"*"})
	if !wildcard(req) {
		t.Error("wildcard should allow any origin")
	}
}

func TestMirrorFactory(t *testing.T) {
	f, err := newMirrorFactory(config.MirrorConfig{Backend: config.BackendMemory, IdleTimeout: "1m"}, discardLogger())
	if err != nil {
		t.Fatalf("newMirrorFactory: %v", err)
	}
	defer f.Close()

	a := f.For("tab-1")
	if err := a.Write("k", "v"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if v, ok, _ := f.For("tab-1").Read("k"); !ok || v != "v" {
		t.Errorf("same session read = %q, %v", v, ok)
	}
	if _, ok, _ := f.For("tab-2").Read("k"); ok {
		t.Error("sessions should not share values")
	}

	f.Release("tab-1")
	if _, ok, _ := f.For("tab-1").Read("k"); ok {
		t.Error("released session kept its values")
	}

	none, err := newMirrorFactory(config.MirrorConfig{Backend: config.BackendNone}, discardLogger())
	if err != nil {
		t.Fatalf("newMirrorFactory: %v", err)
	}
	if none.For("tab") != nil {
		t.Error("backend none should not mirror")
	}

	if _, err := newMirrorFactory(config.MirrorConfig{IdleTimeout: "later"}, discardLogger()); errorCode(err) != "H104" {
		t.Errorf("bad idle timeout: err = %v", err)
	}
}

func TestDemoPage(t *testing.T) {
	cfg := config.New()
	cfg.Bindings = []config.BindingConfig{{Key: "page"}}

	rec := httptest.NewRecorder()
	demoPage(cfg)(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `src="/_hashstate/client.js"`) || !strings.Contains(body, "<code>page</code>") {
		t.Errorf("body = %s", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestMain(m *testing.M) {
	errors.DisableColors()
	os.Exit(m.Run())
}

func TestMissingArgument(t *testing.T) {
	for _, cmd := range []string{"parse", "encode", "decode"} {
		if _, err := execute(t, cmd); errorCode(err) != "H501" {
			t.Errorf("%s without an argument: err = %v, want H501", cmd, err)
		}
	}
	if _, err := execute(t, "parse", "a=1", "b=2"); errorCode(err) != "H501" {
		t.Errorf("parse with two arguments: err = %v", err)
	}
}

func TestS3MirrorNeedsCredentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	cfg := config.MirrorConfig{Backend: config.BackendS3, S3: config.S3Config{Bucket: "b"}}
	if _, err := newMirrorFactory(cfg, discardLogger()); errorCode(err) != "H202" {
		t.Errorf("err = %v, want H202", err)
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "id")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	f, err := newMirrorFactory(cfg, discardLogger())
	if err != nil {
		t.Fatalf("newMirrorFactory: %v", err)
	}
	m, ok := f.For("tab").(*mirror.S3)
	if !ok || m.ObjectKey("q") != "tab/q" {
		t.Errorf("For() = %#v", f.For("tab"))
	}
}

func TestErrorsList(t *testing.T) {
	out, err := execute(t, "errors")
	if err != nil {
		t.Fatalf("errors: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != len(errors.GetAllCodes()) {
		t.Errorf("listed %d codes, want %d", len(lines), len(errors.GetAllCodes()))
	}
	if !strings.HasPrefix(lines[0], "H101") || !strings.HasPrefix(lines[len(lines)-1], "H501") {
		t.Errorf("codes not sorted:\n%s", out)
	}
	if !strings.Contains(out, "Mirror backend unavailable") {
		t.Errorf("output missing H202 message:\n%s", out)
	}
}

func TestErrorsExplain(t *testing.T) {
	out, err := execute(t, "errors", "h302")
	if err != nil {
		t.Fatalf("errors h302: %v", err)
	}
	if !strings.Contains(out, "H302") || !strings.Contains(out, "Value could not be decoded") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Error("output colored with --color auto after colors were disabled")
	}

	if _, err := execute(t, "errors", "H999"); err == nil {
		t.Error("unknown code should fail")
	}
}

func TestColorFlag(t *testing.T) {
	t.Cleanup(errors.DisableColors)

	out, err := execute(t, "--color", "always", "errors", "H101")
	if err != nil {
		t.Fatalf("errors: %v", err)
	}
	if !strings.Contains(out, "\033[") {
		t.Errorf("--color always output has no color: %q", out)
	}

	out, err = execute(t, "--color", "never", "errors", "H101")
	if err != nil {
		t.Fatalf("errors: %v", err)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("--color never output is colored: %q", out)
	}

	if _, err := execute(t, "--color", "sometimes", "version"); err == nil {
		t.Error("unknown color mode should fail")
	}
}

func TestErrorFormatFlag(t *testing.T) {
	if _, err := execute(t, "--error-format", "xml", "version"); err == nil {
		t.Error("unknown error format should fail")
	}
	if _, err := execute(t, "--error-format", "json", "version", "--short"); err != nil {
		t.Errorf("json error format rejected: %v", err)
	}
}

func TestPrintError(t *testing.T) {
	err := errors.New("H501").WithDetail("parse needs a fragment")

	var buf bytes.Buffer
	printError(&buf, err, errorFormatJSON)
	var got struct {
		Code     string `json:"code"`
		Category string `json:"category"`
		Detail   string `json:"detail"`
	}
	if jerr := json.Unmarshal(buf.Bytes(), &got); jerr != nil {
		t.Fatalf("json output %q: %v", buf.String(), jerr)
	}
	if got.Code != "H501" || got.Category != "cli" || got.Detail != "parse needs a fragment" {
		t.Errorf("json output = %+v", got)
	}

	buf.Reset()
	printError(&buf, err, errorFormatCompact)
	if buf.String() != "H501: Missing argument\n" {
		t.Errorf("compact output = %q", buf.String())
	}

	buf.Reset()
	printError(&buf, stderrors.New("plain failure"), errorFormatCompact)
	if buf.String() != "plain failure\n" {
		t.Errorf("compact output for a plain error = %q", buf.String())
	}

	buf.Reset()
	printError(&buf, err, errorFormatText)
	if !strings.Contains(buf.String(), "ERROR H501") {
		t.Errorf("text output = %q", buf.String())
	}
}
