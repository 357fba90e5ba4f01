package project_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"coursekit/internal/catalog"
	"coursekit/internal/course"
	"coursekit/internal/logging"
	"coursekit/internal/media"
	"coursekit/internal/project"
	"coursekit/internal/testsupport"
)

func newManager(t *testing.T, opts ...testsupport.ConfigOption) (*project.Manager, *catalog.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cat := testsupport.MustOpenCatalog(t, cfg)
	return project.NewManager(cfg, cat, logging.NewNop()), cat
}

func TestCreateLoadSave(t *testing.T) {
	ctx := context.Background()
	mgr, cat := newManager(t)

	rec, err := mgr.Create(ctx, "  Intro to Go ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Name != "Intro to Go" || rec.Version != project.RecordVersion || rec.ID == "" {
		t.Fatalf("unexpected record %+v", rec)
	}
	entry, err := cat.Get(ctx, rec.ID)
	if err != nil || entry.State != catalog.StateReady {
		t.Fatalf("catalog entry = %+v, %v", entry, err)
	}

	rec.Graph.Topics = append(rec.Graph.Topics, course.Page{
		Title: "Basics",
		Media: []media.Ref{{ID: "audio-2", Kind: media.KindAudio, Source: media.LocalFile{MIME: "audio/mpeg"}}},
	})
	rec.Name = "Go Basics"
	if err := mgr.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := mgr.Load(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Name != "Go Basics" || len(loaded.Graph.Topics) != 1 {
		t.Fatalf("loaded = %+v", loaded)
	}
	if got := loaded.Graph.Topics[0].Media[0]; got.ID != "audio-2" || got.Kind != media.KindAudio {
		t.Fatalf("media ref = %+v", got)
	}
	entry, _ = cat.Get(ctx, rec.ID)
	if entry.Name != "Go Basics" {
		t.Fatalf("catalog name = %q", entry.Name)
	}
}

func TestCreateRequiresName(t *testing.T) {
	mgr, _ := newManager(t)
	if _, err := mgr.Create(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestLoadMissingProject(t *testing.T) {
	mgr, _ := newManager(t)
	if _, err := mgr.Load(context.Background(), "nope"); !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := mgr.Load(context.Background(), "../escape"); err == nil {
		t.Fatal("expected error for path-like id")
	}
}

func TestLoadStagedProjectIsNotReady(t *testing.T) {
	ctx := context.Background()
	mgr, cat := newManager(t)
	if _, err := cat.Insert(ctx, catalog.Entry{ID: "half", Name: "x", Dir: mgr.Dir("half")}); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Load(ctx, "half"); !errors.Is(err, project.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestSaveKeepsBackupsAndPrunes(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t, testsupport.WithBackupKeep(2))
	rec, err := mgr.Create(ctx, "Backups")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		rec.Graph.Welcome.Narration = string(rune('a' + i))
		if err := mgr.Save(ctx, rec); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	backups, err := mgr.Backups(rec.ID)
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after pruning, got %d", len(backups))
	}
	if !backups[0].Timestamp.After(backups[1].Timestamp) {
		t.Fatal("backups not ordered newest first")
	}
}

func TestRecoverRestoresNewestValidBackup(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t, testsupport.WithBackupKeep(5))
	rec, err := mgr.Create(ctx, "Recover")
	if err != nil {
		t.Fatal(err)
	}

	if r, err := mgr.CheckRecovery(rec.ID); err != nil || r.Available {
		t.Fatalf("fresh project recovery = %+v, %v", r, err)
	}

	rec.Graph.Welcome.Narration = "first"
	if err := mgr.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	rec.Graph.Welcome.Narration = "second"
	if err := mgr.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}

	// the live record is now corrupt
	if err := os.WriteFile(mgr.RecordPath(rec.ID), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Load(ctx, rec.ID); !errors.Is(err, project.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}

	r, err := mgr.CheckRecovery(rec.ID)
	if err != nil || !r.Available || r.Path == "" {
		t.Fatalf("CheckRecovery = %+v, %v", r, err)
	}
	restored, err := mgr.Recover(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if restored.Graph.Welcome.Narration != "first" {
		t.Fatalf("restored narration = %q", restored.Graph.Welcome.Narration)
	}
	loaded, err := mgr.Load(ctx, rec.ID)
	if err != nil || loaded.Graph.Welcome.Narration != "first" {
		t.Fatalf("Load after recover = %+v, %v", loaded, err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mgr, cat := newManager(t)
	rec, err := mgr.Create(ctx, "Gone")
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(mgr.Dir(rec.ID)); !os.IsNotExist(err) {
		t.Fatal("project directory survived delete")
	}
	if _, err := cat.Get(ctx, rec.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("catalog row survived delete: %v", err)
	}
	if err := mgr.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestLockIsExclusive(t *testing.T) {
	mgr, _ := newManager(t)
	lock, err := mgr.Lock("p1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := mgr.Lock("p1"); !errors.Is(err, project.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := lock.Unlock(); err != nil {
		t.Fatal(err)
	}
	again, err := mgr.Lock("p1")
	if err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
	_ = again.Unlock()
}

func TestInstallMovesStagedDirectory(t *testing.T) {
	ctx := context.Background()
	mgr, cat := newManager(t)
	staged := filepath.Join(t.TempDir(), "import-p9")
	if err := os.MkdirAll(filepath.Join(staged, "media"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec := &project.Record{Version: project.RecordVersion, ID: "p9", Name: "Imported", CreatedAt: time.Now().UTC()}
	data, _ := rec.Encode()
	if err := os.WriteFile(filepath.Join(staged, "project.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := mgr.Install(ctx, staged, rec, "/tmp/in.zip"); err != nil {
		t.Fatalf("Install: %v", err)
	}
	entry, err := cat.Get(ctx, "p9")
	if err != nil || entry.State != catalog.StateReady || entry.SourceArchive != "/tmp/in.zip" {
		t.Fatalf("entry = %+v, %v", entry, err)
	}
	if _, err := mgr.Load(ctx, "p9"); err != nil {
		t.Fatalf("Load installed: %v", err)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatal("staged directory still present")
	}
}

func TestCleanStaleStagingRemovesUnregisteredImports(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	cat := testsupport.MustOpenCatalog(t, cfg)
	mgr := project.NewManager(cfg, cat, logging.NewNop())

	orphan := filepath.Join(cfg.Paths.StagingDir, "import-orphan")
	live := filepath.Join(cfg.Paths.StagingDir, "import-live")
	busy := filepath.Join(cfg.Paths.StagingDir, "import-busy")
	for _, dir := range []string{orphan, live, busy} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := cat.Insert(ctx, catalog.Entry{ID: "live", Name: "x", Dir: mgr.Dir("live")}); err != nil {
		t.Fatal(err)
	}

	lock, err := mgr.Lock("busy")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer lock.Unlock()

	result, err := mgr.CleanStaleStaging(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CleanStaleStaging: %v", err)
	}
	if len(result.Removed) != 1 || result.Removed[0].Path != orphan {
		t.Fatalf("removed = %v", result.Removed)
	}
	for _, dir := range []string{live, busy} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("active import staging %s removed", dir)
		}
	}
}
