package process

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/renewmap/compass/pkg/services"
	"github.com/renewmap/compass/pkg/usage"
	"github.com/renewmap/compass/pkg/utils"
)

// FileWriterService is the registry name of the shared file-writer. A single
// queue worker drains it, which serializes every write to the shared output
// files (usage.json, jurisdictions.json, the combined CSVs).
const FileWriterService = "file_writer"

// WriteRequest writes data to a path atomically.
type WriteRequest struct {
	Path string
	Data []byte
	Perm os.FileMode
}

// MoveRequest relocates a file, typically from the cache into the ordinance
// directory.
type MoveRequest struct {
	Src string
	Dst string
}

// UsageRequest merges a jurisdiction's usage record into the usage file.
type UsageRequest struct {
	Tracker *usage.Tracker
	Path    string
}

// ManifestRequest upserts a jurisdiction record into the manifest file.
type ManifestRequest struct {
	Path   string
	Record JurisdictionRecord
}

// NewFileWriter returns the pool-backed file-writer service.
func NewFileWriter(poolSize int) services.Service {
	return services.NewPoolService(FileWriterService, poolSize, handleFileRequest)
}

func handleFileRequest(_ context.Context, req any) (any, error) {
	switch r := req.(type) {
	case *WriteRequest:
		perm := r.Perm
		if perm == 0 {
			perm = 0644
		}
		return nil, utils.WriteFileAtomic(r.Path, r.Data, perm)
	case *MoveRequest:
		return nil, moveFile(r.Src, r.Dst)
	case *UsageRequest:
		return nil, r.Tracker.WriteToFile(r.Path)
	case *ManifestRequest:
		return nil, upsertManifest(r.Path, r.Record)
	default:
		return nil, fmt.Errorf("unexpected file request type %T", req)
	}
}

// WriteFile writes data atomically through the file-writer service.
func WriteFile(ctx context.Context, path string, data []byte) error {
	_, err := services.Call(ctx, FileWriterService, &WriteRequest{Path: path, Data: data})
	return err
}

// MoveFile relocates a file through the file-writer service.
func MoveFile(ctx context.Context, src, dst string) error {
	_, err := services.Call(ctx, FileWriterService, &MoveRequest{Src: src, Dst: dst})
	return err
}

// FlushUsage merges the tracker's record into the usage file.
func FlushUsage(ctx context.Context, tracker *usage.Tracker, path string) error {
	_, err := services.Call(ctx, FileWriterService, &UsageRequest{Tracker: tracker, Path: path})
	return err
}

// UpdateManifest upserts a jurisdiction record into the manifest file.
func UpdateManifest(ctx context.Context, path string, record JurisdictionRecord) error {
	_, err := services.Call(ctx, FileWriterService, &ManifestRequest{Path: path, Record: record})
	return err
}

// moveFile renames when possible and falls back to copy-and-remove for
// cross-device moves.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", dst, err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", src, err)
	}
	data, err := io.ReadAll(in)
	_ = in.Close()
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", src, err)
	}
	if err := utils.WriteFileAtomic(dst, data, 0644); err != nil {
		return err
	}
	return os.Remove(src)
}

// upsertManifest rewrites the manifest with the record replacing any prior
// entry for the same jurisdiction.
func upsertManifest(path string, record JurisdictionRecord) error {
	var manifest []JurisdictionRecord
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &manifest); err != nil {
			return fmt.Errorf("manifest %q is corrupt: %w", path, err)
		}
	}

	replaced := false
	for i, entry := range manifest {
		if entry.FullName == record.FullName {
			manifest[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		manifest = append(manifest, record)
	}

	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return utils.WriteFileAtomic(path, out, 0644)
}
