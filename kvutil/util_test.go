// Copyright (c) 2025 BVK Chaitanya

package kvutil

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bvk/gridbot/records"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
)

func TestAscendPathRange(t *testing.T) {
	ctx := context.Background()
	db := kvmemdb.New()

	keys := []string{"/alerts/a/1", "/alerts/b/2", "/alertsx/c", "/grids/a/btcusdt"}
	for _, k := range keys {
		v := &records.AlertEvent{RuleID: k}
		if err := SetDB(ctx, db, k, v); err != nil {
			t.Fatal(err)
		}
	}

	begin, end := PathRange("/alerts")
	var got []string
	collect := func(ctx context.Context, r kv.Reader, key string, v *records.AlertEvent) error {
		got = append(got, v.RuleID)
		return nil
	}
	if err := AscendDB(ctx, db, begin, end, collect); err != nil {
		t.Fatal(err)
	}
	if want := "/alerts/a/1,/alerts/b/2"; strings.Join(got, ",") != want {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	db := kvmemdb.New()

	state := &records.TelegramState{UserChatIDMap: map[string]int64{"alice": 42}}
	if err := SetDB(ctx, db, "/telegram/bot/state", state); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	export := func(ctx context.Context, r kv.Reader) error {
		return Export(ctx, r, &buf)
	}
	if err := kv.WithReader(ctx, db, export); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"alice"`) {
		t.Fatalf("export is not human readable: %s", buf.String())
	}

	db2 := kvmemdb.New()
	restore := func(ctx context.Context, rw kv.ReadWriter) error {
		return Import(ctx, &buf, rw)
	}
	if err := kv.WithReadWriter(ctx, db2, restore); err != nil {
		t.Fatal(err)
	}
	got, err := GetDB[records.TelegramState](ctx, db2, "/telegram/bot/state")
	if err != nil {
		t.Fatal(err)
	}
	if id := got.UserChatIDMap["alice"]; id != 42 {
		t.Fatalf("want 42, got %d", id)
	}
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	db := kvmemdb.New()

	state := &records.TelegramState{UserChatIDMap: map[string]int64{"bob": 7}}
	if err := SetDB(ctx, db, "/telegram/bot/state", state); err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(t.TempDir(), "backup.json")
	if err := BackupDB(ctx, db, file); err != nil {
		t.Fatal(err)
	}

	db2 := kvmemdb.New()
	if err := RestoreDB(ctx, db2, file); err != nil {
		t.Fatal(err)
	}
	got, err := GetDB[records.TelegramState](ctx, db2, "/telegram/bot/state")
	if err != nil {
		t.Fatal(err)
	}
	if id := got.UserChatIDMap["bob"]; id != 7 {
		t.Fatalf("want 7, got %d", id)
	}
}

func TestReplaceDB(t *testing.T) {
	ctx := context.Background()

	src := kvmemdb.New()
	if err := SetDB(ctx, src, "/grids/a/btcusdt", &records.AlertEvent{RuleID: "kept"}); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(t.TempDir(), "backup.json")
	if err := BackupDB(ctx, src, file); err != nil {
		t.Fatal(err)
	}

	db := kvmemdb.New()
	for _, k := range []string{"/alerts/a/1", "/alerts/a/2"} {
		if err := SetDB(ctx, db, k, &records.AlertEvent{RuleID: k}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := ReplaceDB(ctx, db, file)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("want 2 deleted keys, got %d", n)
	}

	var keys []string
	list := func(ctx context.Context, r kv.Reader) (err error) {
		keys, err = Keys(ctx, r, "", "")
		return err
	}
	if err := kv.WithReader(ctx, db, list); err != nil {
		t.Fatal(err)
	}
	if want := "/grids/a/btcusdt"; strings.Join(keys, ",") != want {
		t.Fatalf("want %v, got %v", want, keys)
	}
}
