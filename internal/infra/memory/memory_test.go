package memory

import (
	"context"
	"testing"
)

func TestStorageLoadSave(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, ok, err := s.Load(ctx, "missing"); ok || err != nil {
		t.Fatalf("Load(missing) = %v, %v", ok, err)
	}

	value := []byte(`"USD"`)
	if err := s.Save(ctx, map[string][]byte{"primaryCurrency": value}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	value[1] = 'X'

	got, ok, err := s.Load(ctx, "primaryCurrency")
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	if string(got) != `"USD"` {
		t.Errorf("stored value aliased caller slice: %s", got)
	}
	if keys := s.Keys(); len(keys) != 1 || keys[0] != "primaryCurrency" {
		t.Errorf("Keys() = %v", keys)
	}
}
