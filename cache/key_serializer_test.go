package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

func priceFilterA(v string) string { return v }
func priceFilterB(v string) string { return v }

func TestDefaultKeySerializer_Scalars(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	tests := []struct {
		name   string
		method string
		args   []any
		want   string
	}{
		{name: "no args", method: "basis", want: "basis"},
		{name: "single int", method: "children", args: []any{int64(42)}, want: joinWithSeparator("children", "42")},
		{
			name:   "mixed scalars",
			method: "basis",
			args:   []any{true, "incl", 3.5},
			want:   joinWithSeparator("basis", "true", "incl", "3.5"),
		},
		{name: "nil", method: "basis", args: []any{nil}, want: joinWithSeparator("basis", "nil")},
		{name: "nil pointer", method: "basis", args: []any{(*int)(nil)}, want: joinWithSeparator("basis", "nil")},
		{name: "nil slice", method: "basis", args: []any{[]string(nil)}, want: joinWithSeparator("basis", "slice:nil")},
		{name: "nil map", method: "basis", args: []any{map[string]int(nil)}, want: joinWithSeparator("basis", "map:nil")},
		{name: "stringer", method: "basis", args: []any{90 * time.Second}, want: joinWithSeparator("basis", "1m30s")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey(tt.method, tt.args...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_Collections(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	value := 7
	tests := []struct {
		name string
		arg  any
		want string
	}{
		{name: "slice", arg: []int{3, 1, 2}, want: "slice[3]:{3,1,2}"},
		{name: "array", arg: [2]string{"a", "b"}, want: "array[2]:{a,b}"},
		{name: "map sorted by key", arg: map[string]int{"standard": 20, "reduced": 5}, want: "map[2]:{reduced=5,standard=20}"},
		{name: "pointer dereferenced", arg: &value, want: "7"},
		{
			name: "struct exported fields only",
			arg: struct {
				Mode   string
				Rate   int
				hidden int
			}{Mode: "excl", Rate: 20, hidden: 1},
			want: "struct:{Mode:excl,Rate:20}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey("k", tt.arg)
			want := joinWithSeparator("k", tt.want)
			if got != want {
				t.Errorf("SerializeKey() = %v, want %v", got, want)
			}
		})
	}
}

func TestDefaultKeySerializer_TextMarshaler(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	a := serializer.SerializeKey("rate", decimal.RequireFromString("20.5"))
	b := serializer.SerializeKey("rate", decimal.RequireFromString("7"))

	if a != joinWithSeparator("rate", "text:20.5") {
		t.Errorf("decimal should be serialized by its text form, got: %v", a)
	}
	if a == b {
		t.Errorf("different decimals must produce different keys: %v", a)
	}
}

func TestDefaultKeySerializer_Functions(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	key1 := serializer.SerializeKey("filters", priceFilterA)
	key2 := serializer.SerializeKey("filters", priceFilterA)
	key3 := serializer.SerializeKey("filters", priceFilterB)

	if key1 != key2 {
		t.Errorf("function serialization should be stable: %v != %v", key1, key2)
	}
	if key1 == key3 {
		t.Errorf("distinct functions must serialize differently: %v", key1)
	}
	if !strings.HasSuffix(key1, "cache.priceFilterA") {
		t.Errorf("function should be serialized by symbol name, got: %v", key1)
	}
}

func TestFuncName(t *testing.T) {
	if got := FuncName("not a func"); got != "" {
		t.Errorf("FuncName(non-func) = %q, want empty", got)
	}
	var nilFn func()
	if got := FuncName(nilFn); got != "" {
		t.Errorf("FuncName(nil func) = %q, want empty", got)
	}
	if got := FuncName(priceFilterB); !strings.HasSuffix(got, ".priceFilterB") {
		t.Errorf("FuncName() = %q", got)
	}
}

func TestDefaultKeySerializer_Stability(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	args := []any{1, "hello", []int{1, 2, 3}, map[string]int{"a": 1, "b": 2, "c": 3}}

	key1 := serializer.SerializeKey("TestMethod", args...)
	for i := 0; i < 20; i++ {
		if key := serializer.SerializeKey("TestMethod", args...); key != key1 {
			t.Fatalf("key serialization should be stable: %v != %v", key, key1)
		}
	}
}

func TestDefaultKeySerializer_Channel(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	key := serializer.SerializeKey("GetWithChannel", make(chan int))
	if key != joinWithSeparator("GetWithChannel", "chan:chan int") {
		t.Errorf("channel should be serialized by type, got: %v", key)
	}
}

func BenchmarkDefaultKeySerializer(b *testing.B) {
	serializer := NewDefaultKeySerializer()
	args := []any{1, "benchmark", []int{1, 2, 3}, map[string]int{"test": 1}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serializer.SerializeKey("BenchmarkMethod", args...)
	}
}
