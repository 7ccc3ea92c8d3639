package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/spsa/internal/opt"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	return store, tempDir
}

// createTestRun creates a finished SPSA run on the sphere function.
func createTestRun(id string) *Run {
	run := NewRun(RunConfig{
		Function: "sphere",
		Dim:      2,
		Method:   MethodSPSA,
		Seed:     42,
		SPSA:     opt.DefaultConfig(),
	}, []float64{1, 1})
	run.ID = id
	run.InitialValue = 2
	run.Finish([]float64{0.01, -0.02}, 0.0005, 1000, 5000, opt.IterationLimit.String(), nil)
	return run
}

func TestNewFSStore(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if store.BaseDir() != tempDir {
		t.Errorf("BaseDir = %q, want %q", store.BaseDir(), tempDir)
	}

	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestSaveRun(t *testing.T) {
	store, tempDir := setupTestStore(t)

	run := createTestRun("run-123")
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "runs", "run-123", "run.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Run file was not created at %s", expectedPath)
	}

	// No temp file should be left behind
	if _, err := os.Stat(expectedPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file was not cleaned up")
	}
}

func TestSaveRun_EmptyID(t *testing.T) {
	store, _ := setupTestStore(t)

	run := createTestRun("")
	if err := store.SaveRun(run); err == nil {
		t.Fatal("Expected error for empty run ID")
	}
}

func TestSaveRun_NilRun(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveRun(nil); err == nil {
		t.Fatal("Expected error for nil run")
	}
}

func TestSaveRun_Overwrite(t *testing.T) {
	store, _ := setupTestStore(t)

	run := createTestRun("run-overwrite")
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	run.Value = 0.0001
	run.Iterations = 2000
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := store.LoadRun("run-overwrite")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.Value != 0.0001 {
		t.Errorf("Expected value 0.0001, got %f", loaded.Value)
	}
	if loaded.Iterations != 2000 {
		t.Errorf("Expected 2000 iterations, got %d", loaded.Iterations)
	}
}

func TestLoadRun(t *testing.T) {
	store, _ := setupTestStore(t)

	original := createTestRun("run-load")
	original.Parent = "run-parent"
	if err := store.SaveRun(original); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := store.LoadRun("run-load")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}

	if loaded.ID != original.ID {
		t.Errorf("ID mismatch: expected %s, got %s", original.ID, loaded.ID)
	}
	if loaded.Parent != original.Parent {
		t.Errorf("Parent mismatch: expected %s, got %s", original.Parent, loaded.Parent)
	}
	if loaded.Config.SPSA != original.Config.SPSA {
		t.Errorf("SPSA config mismatch: expected %+v, got %+v", original.Config.SPSA, loaded.Config.SPSA)
	}
	if len(loaded.Params) != len(original.Params) {
		t.Fatalf("Params length mismatch: expected %d, got %d", len(original.Params), len(loaded.Params))
	}
	for i := range original.Params {
		if loaded.Params[i] != original.Params[i] {
			t.Errorf("Params[%d] mismatch: expected %f, got %f", i, original.Params[i], loaded.Params[i])
		}
	}
	if loaded.Status != original.Status {
		t.Errorf("Status mismatch: expected %s, got %s", original.Status, loaded.Status)
	}
	if !loaded.StartedAt.Equal(original.StartedAt) {
		t.Errorf("StartedAt mismatch: expected %v, got %v", original.StartedAt, loaded.StartedAt)
	}
}

func TestLoadRun_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadRun("missing")
	if err == nil {
		t.Fatal("Expected error for missing run")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLoadRun_EmptyID(t *testing.T) {
	store, _ := setupTestStore(t)

	if _, err := store.LoadRun(""); err == nil {
		t.Fatal("Expected error for empty run ID")
	}
}

func TestListRuns_Empty(t *testing.T) {
	store, _ := setupTestStore(t)

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected 0 runs, got %d", len(infos))
	}
}

func TestListRuns_SortedOldestFirst(t *testing.T) {
	store, _ := setupTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := []string{"run-c", "run-a", "run-b"}
	offsets := []time.Duration{2 * time.Hour, 0, time.Hour}
	for i, id := range ids {
		run := createTestRun(id)
		run.StartedAt = base.Add(offsets[i])
		if err := store.SaveRun(run); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", id, err)
		}
	}

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(infos))
	}

	want := []string{"run-a", "run-b", "run-c"}
	for i, info := range infos {
		if info.ID != want[i] {
			t.Errorf("infos[%d].ID = %s, want %s", i, info.ID, want[i])
		}
		if info.Function != "sphere" || info.Method != MethodSPSA {
			t.Errorf("infos[%d] has unexpected metadata: %+v", i, info)
		}
	}
}

func TestListRuns_SkipsInvalidDirectories(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveRun(createTestRun("run-valid")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	// Directory without run.json
	if err := os.MkdirAll(filepath.Join(tempDir, "runs", "empty-dir"), 0755); err != nil {
		t.Fatalf("Failed to create empty directory: %v", err)
	}

	// Directory with corrupted run.json
	corruptDir := filepath.Join(tempDir, "runs", "corrupt")
	if err := os.MkdirAll(corruptDir, 0755); err != nil {
		t.Fatalf("Failed to create corrupt directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(corruptDir, "run.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt run: %v", err)
	}

	// Stray file
	if err := os.WriteFile(filepath.Join(tempDir, "runs", "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write stray file: %v", err)
	}

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("Expected 1 valid run, got %d", len(infos))
	}
	if infos[0].ID != "run-valid" {
		t.Errorf("Expected run-valid, got %s", infos[0].ID)
	}
}

func TestDeleteRun(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveRun(createTestRun("run-delete")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	writer, err := NewTraceWriter(tempDir, "run-delete", false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	if err := writer.Write(TraceEntry{Iteration: 0, Value: 1, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	writer.Close()

	if err := store.DeleteRun("run-delete"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}

	if _, err := os.Stat(store.RunDir("run-delete")); !os.IsNotExist(err) {
		t.Error("Run directory still exists after deletion")
	}
	if _, err := store.LoadRun("run-delete"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after deletion, got %v", err)
	}
}

func TestDeleteRun_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.DeleteRun("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRun_EmptyID(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.DeleteRun(""); err == nil {
		t.Fatal("Expected error for empty run ID")
	}
}

func TestSaveRun_RejectsInvalidRun(t *testing.T) {
	store, _ := setupTestStore(t)

	run := createTestRun("run-invalid")
	run.Config.Method = "annealing"
	if err := store.SaveRun(run); err == nil {
		t.Fatal("Expected validation error for unknown method")
	}
	if _, err := os.Stat(store.RunDir("run-invalid")); !os.IsNotExist(err) {
		t.Error("Invalid run should not create a directory")
	}
}

func TestConcurrentSave(t *testing.T) {
	store, _ := setupTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.SaveRun(createTestRun(fmt.Sprintf("run-%d", i))); err != nil {
				t.Errorf("Concurrent save %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 10 {
		t.Errorf("Expected 10 runs, got %d", len(infos))
	}
}
