package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"coursekit/internal/config"
	"coursekit/internal/logging"
	"coursekit/internal/media"
	"coursekit/internal/mediastore"
	"coursekit/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("COURSEKIT_PROJECTS_DIR", "")
	t.Setenv("COURSEKIT_CATALOG", "")
	t.Setenv("COURSEKIT_LOG_LEVEL", "")

	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("coursekit %s: %v\noutput: %s", strings.Join(args, " "), err, out)
	}
	return out
}

func (e *cliTestEnv) createProject(t *testing.T, name string, topics ...string) string {
	t.Helper()
	args := []string{"--json", "project", "create", name}
	for _, topic := range topics {
		args = append(args, "--topic", topic)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(e.mustRun(t, args...)), &created); err != nil {
		t.Fatalf("decode create output: %v", err)
	}
	if created.ID == "" {
		t.Fatal("create returned no id")
	}
	return created.ID
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProjectAndMediaCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.createProject(t, "Intro to Soil", "Texture", "Drainage")

	out := env.mustRun(t, "project", "list")
	if !strings.Contains(out, "Intro to Soil") || !strings.Contains(out, id[:8]) {
		t.Fatalf("project list missing project: %q", out)
	}

	out = env.mustRun(t, "project", "show", id[:8])
	for _, want := range []string{"welcome", "objectives", "topic-1", "Drainage"} {
		if !strings.Contains(out, want) {
			t.Fatalf("project show missing %q: %q", want, out)
		}
	}

	image := writeTempFile(t, "diagram.png", []byte{1, 2, 3, 4})
	out = env.mustRun(t, "media", "put", id, "topic-0", "image", image)
	if !strings.Contains(out, "Stored image-0 on topic-0") {
		t.Fatalf("unexpected put output: %q", out)
	}
	env.mustRun(t, "media", "link", id, "topic-1", "https://videos.example.com/v/42", "--start", "30", "--end", "90")

	var listed struct {
		Media []mediaJSON      `json:"media"`
		Usage mediastore.Usage `json:"usage"`
	}
	if err := json.Unmarshal([]byte(env.mustRun(t, "--json", "media", "ls", id)), &listed); err != nil {
		t.Fatalf("decode media ls: %v", err)
	}
	if len(listed.Media) != 2 || listed.Usage.Count != 1 || listed.Usage.Bytes != 4 {
		t.Fatalf("unexpected media listing: %+v", listed)
	}
	for _, m := range listed.Media {
		switch m.ID {
		case "image-0":
			if m.MIME != "image/png" || m.Size != 4 || m.Name != "diagram.png" {
				t.Fatalf("unexpected image entry: %+v", m)
			}
		case "video-0":
			if m.ClipStart == nil || *m.ClipStart != 30 || m.ClipEnd == nil || *m.ClipEnd != 90 {
				t.Fatalf("unexpected clip: %+v", m)
			}
		default:
			t.Fatalf("unexpected media %q", m.ID)
		}
	}

	dest := filepath.Join(t.TempDir(), "copy.png")
	env.mustRun(t, "media", "get", id, "image-0", "-o", dest)
	got, err := os.ReadFile(dest)
	if err != nil || !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("media get wrote %v (err %v)", got, err)
	}
	downloads := t.TempDir()
	env.mustRun(t, "media", "get", id, "image-0", "-o", downloads)
	if _, err := os.Stat(filepath.Join(downloads, "diagram.png")); err != nil {
		t.Fatalf("media get into directory: %v", err)
	}
	out = env.mustRun(t, "media", "get", id, "video-0")
	if strings.TrimSpace(out) != "https://videos.example.com/v/42" {
		t.Fatalf("remote get = %q", out)
	}

	env.mustRun(t, "media", "rm", id, "image-0")
	if _, err := env.run(t, "media", "get", id, "image-0"); !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("get after rm err = %v, want ErrNotFound", err)
	}

	env.mustRun(t, "project", "delete", id)
	out = env.mustRun(t, "project", "list")
	if !strings.Contains(out, "No projects found") {
		t.Fatalf("project still listed after delete: %q", out)
	}
}

func TestMediaPutRejectsUnknownPage(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.createProject(t, "Empty")
	file := writeTempFile(t, "a.mp3", []byte("x"))

	if _, err := env.run(t, "media", "put", id, "topic-3", "audio", file); err == nil {
		t.Fatal("expected error for missing topic page")
	}
	if _, err := env.run(t, "media", "put", id, "welcome", "sticker", file); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestArchiveExportImportAndInspect(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.createProject(t, "Café Basics", "Beans")
	env.mustRun(t, "media", "put", id, "welcome", "audio", writeTempFile(t, "hello.mp3", []byte("narration")))

	archivePath := filepath.Join(t.TempDir(), "cafe.zip")
	out := env.mustRun(t, "archive", "export", id, "-o", archivePath)
	if !strings.Contains(out, "Exported Café Basics") {
		t.Fatalf("unexpected export output: %q", out)
	}

	var inspected struct {
		Format string   `json:"format"`
		Media  []string `json:"media"`
		Topics int      `json:"topics"`
	}
	if err := json.Unmarshal([]byte(env.mustRun(t, "--json", "archive", "inspect", archivePath)), &inspected); err != nil {
		t.Fatalf("decode inspect: %v", err)
	}
	if inspected.Format != "coursekit-project" || inspected.Topics != 1 || len(inspected.Media) != 1 || inspected.Media[0] != "audio-0" {
		t.Fatalf("unexpected inspect output: %+v", inspected)
	}

	var imported struct {
		ProjectID string `json:"project_id"`
		Media     int    `json:"media"`
	}
	if err := json.Unmarshal([]byte(env.mustRun(t, "--json", "archive", "import", archivePath)), &imported); err != nil {
		t.Fatalf("decode import: %v", err)
	}
	if imported.ProjectID == "" || imported.ProjectID == id || imported.Media != 1 {
		t.Fatalf("unexpected import summary: %+v", imported)
	}

	var projects []projectJSON
	if err := json.Unmarshal([]byte(env.mustRun(t, "--json", "project", "list")), &projects); err != nil {
		t.Fatalf("decode project list: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects after import, got %d", len(projects))
	}

	dest := filepath.Join(t.TempDir(), "audio.bin")
	env.mustRun(t, "media", "get", imported.ProjectID, "audio-0", "-o", dest)
	if got, _ := os.ReadFile(dest); string(got) != "narration" {
		t.Fatalf("imported audio = %q", got)
	}
}

func TestArchiveExportDefaultsToSlugName(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.createProject(t, "Café Basics")
	t.Chdir(t.TempDir())

	env.mustRun(t, "archive", "export", id)
	if _, err := os.Stat("cafe-basics.zip"); err != nil {
		t.Fatalf("default archive not written: %v", err)
	}
}

func TestArchiveReplaceKeepsProjectOnBrokenArchive(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.createProject(t, "Keep Me")
	broken := writeTempFile(t, "broken.zip", []byte("not a zip"))

	_, err := env.run(t, "archive", "replace", id, broken)
	if !errors.Is(err, media.ErrArchiveInvalid) {
		t.Fatalf("replace err = %v, want ErrArchiveInvalid", err)
	}
	if out := env.mustRun(t, "project", "show", id); !strings.Contains(out, "Keep Me") {
		t.Fatalf("project lost after failed replace: %q", out)
	}
}

func TestMediaCheckReportsOrphanedPayload(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.createProject(t, "Check Me")

	out := env.mustRun(t, "media", "check", id)
	if !strings.Contains(out, "consistent") {
		t.Fatalf("unexpected check output: %q", out)
	}

	store, err := mediastore.New(filepath.Join(env.cfg.Paths.ProjectsDir, id, "media"), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.PutBytes(context.Background(), "image-7", []byte("stray"), mediastore.PutMeta{Kind: media.KindImage, Page: media.Welcome()}); err != nil {
		t.Fatal(err)
	}

	out, err = env.run(t, "media", "check", id)
	if err == nil {
		t.Fatal("expected check to fail with an orphaned payload")
	}
	if !strings.Contains(out, "Orphaned:   image-7") {
		t.Fatalf("orphan not reported: %q", out)
	}
}

func TestMediaRepairRelabelsPositionalPayloads(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.createProject(t, "Repair Me", "One")

	store, err := mediastore.New(filepath.Join(env.cfg.Paths.ProjectsDir, id, "media"), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.PutBytes(context.Background(), "caption-1", []byte("WEBVTT"), mediastore.PutMeta{Kind: media.KindCaption, Page: media.Topic(0)}); err != nil {
		t.Fatal(err)
	}

	out := env.mustRun(t, "media", "repair", id)
	if !strings.Contains(out, "Relabeled caption-1: topic-0 -> objectives") {
		t.Fatalf("unexpected repair output: %q", out)
	}
	out = env.mustRun(t, "media", "repair", id)
	if !strings.Contains(out, "No page labels needed repair") {
		t.Fatalf("repair not idempotent: %q", out)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "coursekit", "config.toml")
	cmd := newRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}

	cmd = newRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already-exists error, got %v", err)
	}
}

func TestDoctorReportsChecks(t *testing.T) {
	env := setupCLITestEnv(t)
	out := env.mustRun(t, "doctor")
	for _, want := range []string{"Projects directory", "Staging free space", "Catalog", "[OK]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("doctor output missing %q: %q", want, out)
		}
	}
}

func TestStagingListAndClean(t *testing.T) {
	env := setupCLITestEnv(t)
	orphan := filepath.Join(env.cfg.Paths.StagingDir, "import-deadbeef")
	testsupport.WriteFile(t, filepath.Join(orphan, "media", "image-0.bin"), 512)

	var listed struct {
		Directories []struct {
			Name      string `json:"name"`
			ProjectID string `json:"project_id"`
			Size      int64  `json:"size_bytes"`
		} `json:"directories"`
		TotalBytes int64 `json:"total_bytes"`
	}
	if err := json.Unmarshal([]byte(env.mustRun(t, "--json", "staging", "list")), &listed); err != nil {
		t.Fatalf("decode staging list: %v", err)
	}
	if len(listed.Directories) != 1 || listed.Directories[0].ProjectID != "deadbeef" || listed.TotalBytes != 512 {
		t.Fatalf("unexpected staging list: %+v", listed)
	}

	out := env.mustRun(t, "staging", "clean")
	if !strings.Contains(out, "Removed import-deadbeef") {
		t.Fatalf("clean output = %q", out)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("orphan staging dir still present: %v", err)
	}
	if out := env.mustRun(t, "staging", "clean"); !strings.Contains(out, "Nothing to clean") {
		t.Fatalf("second clean output = %q", out)
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("plain"), "plain"},
		{fmt.Errorf("open: %w", media.ErrNotFound), "not_found: open: media not found"},
		{media.NewIOError("write", "image-0", errors.New("disk full")), "io_failure: write image-0: disk full"},
	}
	for _, tt := range tests {
		if got := describeError(tt.err); got != tt.want {
			t.Errorf("describeError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestLogsShowsCommandActivity(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.createProject(t, "Logged")

	out := env.mustRun(t, "logs", "--match", "project created")
	if !strings.Contains(out, "project created") {
		t.Fatalf("log line missing: %q", out)
	}
	out = env.mustRun(t, "logs", "--match", "no such text "+id)
	if strings.TrimSpace(out) != "" {
		t.Fatalf("expected no lines, got %q", out)
	}
}
