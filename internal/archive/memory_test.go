package archive_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openlot/openlot/marketplace/internal/archive"
)

func TestMemoryDriver_SetGet(t *testing.T) {
	d := archive.NewMemoryDriver()
	defer d.Close(context.Background())
	ctx := context.Background()

	if err := d.Set(ctx, "k1", []byte(`{"a":1}`), archive.SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := d.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("Get = %q, want %q", got, `{"a":1}`)
	}

	_, err = d.Get(ctx, "missing")
	var notFound *archive.ErrKeyNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("Get(missing) error = %v, want ErrKeyNotFound", err)
	}
}

func TestMemoryDriver_TTLExpiry(t *testing.T) {
	d := archive.NewMemoryDriver()
	defer d.Close(context.Background())
	ctx := context.Background()

	if err := d.Set(ctx, "short", []byte("v"), archive.SetOptions{TTL: 10 * time.Millisecond, Tags: []string{"t"}}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := d.Get(ctx, "short"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	time.Sleep(25 * time.Millisecond)

	// Expiry is enforced on read, ahead of the sweep.
	var notFound *archive.ErrKeyNotFound
	if _, err := d.Get(ctx, "short"); !errors.As(err, &notFound) {
		t.Errorf("Get after expiry error = %v, want ErrKeyNotFound", err)
	}
	listed, err := d.ListTag(ctx, "t")
	if err != nil {
		t.Fatalf("ListTag: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("ListTag returned %d expired records, want 0", len(listed))
	}
}

func TestMemoryDriver_ListTag(t *testing.T) {
	d := archive.NewMemoryDriver()
	defer d.Close(context.Background())
	ctx := context.Background()

	sets := []struct {
		key  string
		tags []string
	}{
		{"a", []string{"ws:alpha"}},
		{"b", []string{"ws:alpha", "agent:x"}},
		{"c", []string{"ws:beta"}},
	}
	for _, s := range sets {
		if err := d.Set(ctx, s.key, []byte(s.key), archive.SetOptions{Tags: s.tags}); err != nil {
			t.Fatalf("Set(%s): %v", s.key, err)
		}
	}

	got, err := d.ListTag(ctx, "ws:alpha")
	if err != nil {
		t.Fatalf("ListTag: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Insertion order.
	if string(got[0]) != "a" || string(got[1]) != "b" {
		t.Errorf("order = [%s, %s], want [a, b]", got[0], got[1])
	}

	none, err := d.ListTag(ctx, "ws:gamma")
	if err != nil {
		t.Fatalf("ListTag(unknown): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListTag(unknown) = %d records, want 0", len(none))
	}
}

func TestMemoryDriver_SetReplacesTags(t *testing.T) {
	d := archive.NewMemoryDriver()
	defer d.Close(context.Background())
	ctx := context.Background()

	if err := d.Set(ctx, "k", []byte("v1"), archive.SetOptions{Tags: []string{"old"}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := d.Set(ctx, "k", []byte("v2"), archive.SetOptions{Tags: []string{"new"}}); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	old, _ := d.ListTag(ctx, "old")
	if len(old) != 0 {
		t.Errorf("record still listed under replaced tag")
	}
	fresh, _ := d.ListTag(ctx, "new")
	if len(fresh) != 1 || string(fresh[0]) != "v2" {
		t.Errorf("ListTag(new) = %v, want [v2]", fresh)
	}
}

func TestMemoryDriver_Incr(t *testing.T) {
	d := archive.NewMemoryDriver()
	defer d.Close(context.Background())
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := d.Incr(ctx, "counter")
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if got != want {
			t.Errorf("Incr = %d, want %d", got, want)
		}
	}

	other, _ := d.Incr(ctx, "other")
	if other != 1 {
		t.Errorf("independent counter = %d, want 1", other)
	}
}

func TestMemoryDriver_CloseIdempotent(t *testing.T) {
	d := archive.NewMemoryDriver()
	ctx := context.Background()

	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
