// Package snapshot reads and writes the published price snapshot artifact.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/traderecks999/data/internal/model"
)

// legacyAsOfKeys are timestamp keys written by older versions of the artifact.
var legacyAsOfKeys = []string{"asOf", "as_of"}

// Read loads the snapshot at path. A missing or malformed file yields a nil
// snapshot and no error: the run proceeds with nothing to backfill from.
func Read(path string) (*model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("[INFO] no previous snapshot at %s", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		log.Printf("[WARN] previous snapshot %s is not valid json, ignoring: %v", path, err)
		return nil, nil
	}
	if err := artifactSchema.Validate(raw); err != nil {
		log.Printf("[WARN] previous snapshot %s does not match schema, ignoring: %v", path, err)
		return nil, nil
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[WARN] previous snapshot %s could not be decoded, ignoring: %v", path, err)
		return nil, nil
	}
	if snap.AsOfUTC.IsZero() {
		snap.AsOfUTC = legacyAsOf(raw)
	}
	if snap.Prices == nil {
		snap.Prices = map[string]model.QuoteRecord{}
	}
	return &snap, nil
}

func legacyAsOf(raw interface{}) time.Time {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return time.Time{}
	}
	for _, key := range legacyAsOfKeys {
		s, ok := obj[key].(string)
		if !ok {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// AsOf returns the snapshot timestamp, or nil when there is no usable one.
func AsOf(snap *model.Snapshot) *time.Time {
	if snap == nil || snap.AsOfUTC.IsZero() {
		return nil
	}
	t := snap.AsOfUTC
	return &t
}

// Records returns the per-ticker records of snap; nil-safe.
func Records(snap *model.Snapshot) map[string]model.QuoteRecord {
	if snap == nil {
		return nil
	}
	return snap.Prices
}

// Write serializes snap to path atomically: the data goes to a sibling temp
// file that is synced and renamed over path. On failure path is left untouched.
func Write(path string, snap *model.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := writeSynced(tmp, data); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	return f.Close()
}
