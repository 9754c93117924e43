package storage

import (
	"reflect"
	"testing"
)

func TestTagsRoundTrip(t *testing.T) {
	t.Parallel()

	cases := [][]string{
		{"go", "concurrency"},
		{"tips, tricks", "c++"},
		nil,
	}
	for _, tags := range cases {
		raw, err := encodeTags(tags)
		if err != nil {
			t.Fatalf("encode %v: %v", tags, err)
		}
		got, err := decodeTags(raw)
		if err != nil {
			t.Fatalf("decode %v: %v", tags, err)
		}
		if len(tags) == 0 {
			if got != nil {
				t.Fatalf("empty tags must decode to nil, got %v", got)
			}
			continue
		}
		if !reflect.DeepEqual(got, tags) {
			t.Fatalf("tags round trip %v -> %v", tags, got)
		}
	}
}
