package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pixil98/go-testutil"
)

// mockStoreSpec implements ValidatingSpec for testing FileStore
type mockStoreSpec struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func (s *mockStoreSpec) Validate() error {
	return nil
}

func writeAsset(t *testing.T, dir, filename, id string, spec *mockStoreSpec) {
	t.Helper()

	asset := Asset[*mockStoreSpec]{
		Version:    1,
		Identifier: Identifier(id),
		Spec:       spec,
	}
	data, err := json.Marshal(asset)
	if err != nil {
		t.Fatalf("failed to marshal test asset: %v", err)
	}
	err = os.WriteFile(filepath.Join(dir, filename), data, 0644)
	if err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
}

func TestNewFileStore(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "path", store.path, tmpDir)
	testutil.AssertEqual(t, "records length", len(store.records), 0)
}

func TestNewFileStore_NonExistentDirectory(t *testing.T) {
	_, err := NewFileStore[*mockStoreSpec]("/nonexistent/path/that/does/not/exist")
	if err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestNewFileStore_WithExistingAssets(t *testing.T) {
	tmpDir := t.TempDir()

	writeAsset(t, tmpDir, "item-1.json", "item-1", &mockStoreSpec{Name: "First", Value: 1})
	writeAsset(t, tmpDir, "item-2.json", "item-2", &mockStoreSpec{Name: "Second", Value: 2})

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "record count", len(store.records), 2)

	item1 := store.Get("item-1")
	if item1 == nil {
		t.Fatal("expected item-1 to be loaded")
	}
	testutil.AssertEqual(t, "item-1 name", item1.Name, "First")
	testutil.AssertEqual(t, "item-1 value", item1.Value, 1)
}

func TestNewFileStore_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()

	err := os.WriteFile(filepath.Join(tmpDir, "bad.json"), []byte(`{invalid json`), 0644)
	if err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	_, err = NewFileStore[*mockStoreSpec](tmpDir)
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestNewFileStore_ValidationError(t *testing.T) {
	tmpDir := t.TempDir()

	// Version 0 fails asset validation
	asset := Asset[*mockStoreSpec]{
		Version:    0,
		Identifier: "test",
		Spec:       &mockStoreSpec{Name: "Test", Value: 1},
	}
	data, err := json.Marshal(asset)
	if err != nil {
		t.Fatalf("failed to marshal test asset: %v", err)
	}
	err = os.WriteFile(filepath.Join(tmpDir, "test.json"), data, 0644)
	if err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	_, err = NewFileStore[*mockStoreSpec](tmpDir)
	if err == nil {
		t.Error("expected validation error")
	}
}

func TestNewFileStore_DuplicateKey(t *testing.T) {
	tmpDir := t.TempDir()

	subDir := filepath.Join(tmpDir, "subdir")
	err := os.Mkdir(subDir, 0755)
	if err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	// Two files with the same ID in different directories
	writeAsset(t, tmpDir, "file1.json", "duplicate-id", &mockStoreSpec{Name: "Test", Value: 1})
	writeAsset(t, subDir, "file2.json", "duplicate-id", &mockStoreSpec{Name: "Test", Value: 1})

	_, err = NewFileStore[*mockStoreSpec](tmpDir)
	if err == nil {
		t.Error("expected duplicate key error")
	}
}

func TestNewFileStore_IgnoresNonJSONFiles(t *testing.T) {
	tmpDir := t.TempDir()

	writeAsset(t, tmpDir, "valid.json", "valid", &mockStoreSpec{Name: "Valid", Value: 1})

	err := os.WriteFile(filepath.Join(tmpDir, "readme.txt"), []byte("ignore me"), 0644)
	if err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	err = os.WriteFile(filepath.Join(tmpDir, "data.yaml"), []byte("ignore: me"), 0644)
	if err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "record count", len(store.records), 1)
}

func TestFileStore_Get(t *testing.T) {
	tmpDir := t.TempDir()
	writeAsset(t, tmpDir, "existing.json", "existing", &mockStoreSpec{Name: "Test", Value: 42})

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}

	tests := map[string]struct {
		id       string
		expNil   bool
		expName  string
		expValue int
	}{
		"get existing record": {
			id:       "existing",
			expName:  "Test",
			expValue: 42,
		},
		"get non-existing record": {
			id:     "nonexistent",
			expNil: true,
		},
		"get empty id": {
			id:     "",
			expNil: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			result := store.Get(tt.id)

			if tt.expNil {
				if result != nil {
					t.Errorf("expected nil, got %v", result)
				}
				return
			}
			if result == nil {
				t.Fatal("expected non-nil result")
			}
			testutil.AssertEqual(t, "name", result.Name, tt.expName)
			testutil.AssertEqual(t, "value", result.Value, tt.expValue)
		})
	}
}

func TestFileStore_GetAll(t *testing.T) {
	tmpDir := t.TempDir()
	writeAsset(t, tmpDir, "one.json", "one", &mockStoreSpec{Name: "One", Value: 1})
	writeAsset(t, tmpDir, "two.json", "two", &mockStoreSpec{Name: "Two", Value: 2})

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}

	result := store.GetAll()
	testutil.AssertEqual(t, "count", len(result), 2)

	// Verify it's a copy, not the original
	for k := range result {
		delete(result, k)
	}
	testutil.AssertEqual(t, "records intact", len(store.records), 2)
}
