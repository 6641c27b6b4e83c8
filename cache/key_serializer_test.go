package cache

import (
	"strings"
	"testing"
)

func TestSerializeKey_MethodOnly(t *testing.T) {
	s := NewDefaultKeySerializer()
	if got := s.SerializeKey("ListProfiles"); got != "ListProfiles" {
		t.Errorf("expected bare method name, got %q", got)
	}
}

func TestSerializeKey_MethodIsPrefix(t *testing.T) {
	s := NewDefaultKeySerializer()
	key := s.SerializeKey("GetByID", "profile-123")
	if !strings.HasPrefix(key, "GetByID"+KeySeparator) {
		t.Errorf("method must lead the key for prefix invalidation, got %q", key)
	}
}

func TestSerializeKey_Deterministic(t *testing.T) {
	s := NewDefaultKeySerializer()

	tests := []struct {
		name string
		args []any
	}{
		{"strings", []any{"home", "profile-1"}},
		{"pagination", []any{0, 10}},
		{"id batch", []any{[]string{"p1", "p2", "p3"}}},
		{"mixed", []any{"ranked", 20, int64(10), true}},
		{"map", []any{map[string]int{"b": 2, "a": 1}}},
		{"struct", []any{struct {
			Feed   string
			Offset int
		}{"home", 10}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := s.SerializeKey("List", tt.args...)
			second := s.SerializeKey("List", tt.args...)
			if first != second {
				t.Errorf("non-deterministic key: %q != %q", first, second)
			}
		})
	}
}

func TestSerializeKey_DistinctArgsDistinctKeys(t *testing.T) {
	s := NewDefaultKeySerializer()

	a := s.SerializeKey("Page", "home", 0, 10)
	b := s.SerializeKey("Page", "home", 10, 10)
	if a == b {
		t.Errorf("different offsets must produce different keys: %q", a)
	}

	c := s.SerializeKey("Page", "ranked", 0, 10)
	if a == c {
		t.Errorf("different feeds must produce different keys: %q", a)
	}
}

func TestSerializeKey_NilAndPointer(t *testing.T) {
	s := NewDefaultKeySerializer()

	key := s.SerializeKey("Get", nil)
	if key != "Get"+KeySeparator+"nil" {
		t.Errorf("unexpected nil serialization: %q", key)
	}

	v := "profile-1"
	direct := s.SerializeKey("Get", v)
	viaPtr := s.SerializeKey("Get", &v)
	if direct != viaPtr {
		t.Errorf("pointer should dereference to the same key: %q != %q", direct, viaPtr)
	}
}

func TestSerializeKey_FuncByPointerStable(t *testing.T) {
	s := NewDefaultKeySerializer()
	fn := func() {}

	first := s.SerializeKey("Get", fn)
	second := s.SerializeKey("Get", fn)
	if first != second {
		t.Errorf("same func value must serialize identically: %q != %q", first, second)
	}
}
