// Copyright (c) 2023 BVK Chaitanya

package kvutil

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bvk/gridbot/records"
	"github.com/bvkgo/kv"
)

// Export writes all key-value pairs as a stream of json objects, one per line.
func Export(ctx context.Context, r kv.Reader, w io.Writer) error {
	return ExportRange(ctx, r, "", "", w)
}

// ExportRange is like Export, but limited to the keys in [begin, end) range.
// Empty begin and end select the whole database.
func ExportRange(ctx context.Context, r kv.Reader, begin, end string, w io.Writer) error {
	it, err := r.Ascend(ctx, begin, end)
	if err != nil {
		return fmt.Errorf("could not create scanning iterator: %w", err)
	}
	defer kv.Close(it)

	encoder := json.NewEncoder(w)
	for k, v, err := it.Fetch(ctx, false); err == nil; k, v, err = it.Fetch(ctx, true) {
		value, err := io.ReadAll(v)
		if err != nil {
			return fmt.Errorf("could not read value at key %q: %w", k, err)
		}
		if !json.Valid(value) {
			if value, err = json.Marshal(string(value)); err != nil {
				return fmt.Errorf("could not quote non-json value at key %q: %w", k, err)
			}
		}
		item := &records.KeyValue{
			Key:   k,
			Value: json.RawMessage(value),
		}
		if err := encoder.Encode(item); err != nil {
			return fmt.Errorf("could not encode key/value item: %w", err)
		}
	}
	if _, _, err := it.Fetch(ctx, false); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("iterator fetch has failed: %w", err)
	}
	return nil
}

// Import reads the key-value stream produced by Export and writes every item
// into the database.
func Import(ctx context.Context, r io.Reader, rw kv.ReadWriter) error {
	decoder := json.NewDecoder(r)

	var err error
	var item records.KeyValue
	for err = decoder.Decode(&item); err == nil; err = decoder.Decode(&item) {
		if err := rw.Set(ctx, item.Key, strings.NewReader(string(item.Value))); err != nil {
			return fmt.Errorf("could not restore at key %q: %w", item.Key, err)
		}
		item = records.KeyValue{}
	}

	if !errors.Is(err, io.EOF) {
		return fmt.Errorf("could not decode item from backup file: %w", err)
	}
	return nil
}

// BackupDB saves the database snapshot into a file. File is written to a
// temporary location first and renamed only after it is fully synced.
func BackupDB(ctx context.Context, db kv.Database, file string) (status error) {
	abspath, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("could not determine absolute path: %w", err)
	}

	fp, err := os.CreateTemp(path.Dir(abspath), ".backup*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	defer func() {
		if status != nil {
			os.Remove(fp.Name())
		}
		fp.Close()
	}()

	bw := bufio.NewWriter(fp)

	save := func(ctx context.Context, r kv.Reader) error {
		if err := Export(ctx, r, bw); err != nil {
			return fmt.Errorf("could not export db content: %w", err)
		}
		return nil
	}
	if err := kv.WithReader(ctx, db, save); err != nil {
		return err
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("could not flush the bufio writer: %w", err)
	}
	if err := fp.Sync(); err != nil {
		return fmt.Errorf("could not sync the output file: %w", err)
	}
	if err := os.Rename(fp.Name(), abspath); err != nil {
		return fmt.Errorf("could not rename temp file to %q: %w", abspath, err)
	}
	return nil
}

// RestoreDB imports a backup file into the database in a single transaction.
func RestoreDB(ctx context.Context, db kv.Database, file string) error {
	fp, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("could not open backup file: %w", err)
	}
	defer fp.Close()

	restore := func(ctx context.Context, rw kv.ReadWriter) error {
		return Import(ctx, bufio.NewReader(fp), rw)
	}
	return kv.WithReadWriter(ctx, db, restore)
}

// ReplaceDB deletes every key in the database and imports the backup file,
// both in a single transaction. Returns the number of keys deleted.
func ReplaceDB(ctx context.Context, db kv.Database, file string) (ndeleted int, status error) {
	fp, err := os.Open(file)
	if err != nil {
		return 0, fmt.Errorf("could not open backup file: %w", err)
	}
	defer fp.Close()

	replace := func(ctx context.Context, rw kv.ReadWriter) error {
		n, err := DeleteRange(ctx, rw, "", "")
		if err != nil {
			return err
		}
		ndeleted = n
		return Import(ctx, bufio.NewReader(fp), rw)
	}
	if err := kv.WithReadWriter(ctx, db, replace); err != nil {
		return 0, err
	}
	return ndeleted, nil
}

// DeleteRange removes all keys in the [begin, end) range and returns the
// number of keys removed.
func DeleteRange(ctx context.Context, rw kv.ReadWriter, begin, end string) (int, error) {
	keys, err := Keys(ctx, rw, begin, end)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := rw.Delete(ctx, k); err != nil {
			return 0, fmt.Errorf("could not delete key %q: %w", k, err)
		}
	}
	return len(keys), nil
}
