package rdb

import (
	"bytes"
	"testing"
	"time"

	rdbencoder "github.com/hdt3213/rdb/encoder"
	"github.com/hdt3213/rdb/parser"
)

// Files produced by a third-party encoder must load.
func TestDecode_ThirdPartyEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc := rdbencoder.NewEncoder(&buf)
	expiry := testNow.Add(time.Hour).UnixMilli()

	steps := []func() error{
		enc.WriteHeader,
		func() error { return enc.WriteAux("redis-ver", "7.2.0") },
		func() error { return enc.WriteDBHeader(0, 3, 1) },
		func() error { return enc.WriteStringObject("greeting", []byte("hello")) },
		func() error { return enc.WriteStringObject("counter", []byte("12345")) },
		func() error {
			return enc.WriteStringObject("session", []byte("token-value"), rdbencoder.WithTTL(uint64(expiry)))
		},
		enc.WriteEnd,
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("encoder step %d: %v", i, err)
		}
	}

	got := recordMap(decode(t, buf.Bytes()).Records)

	want := map[string]string{"greeting": "hello", "counter": "12345", "session": "token-value"}
	for k, v := range want {
		if got[k].Value != v {
			t.Errorf("%s = %q, want %q", k, got[k].Value, v)
		}
	}
	if got["session"].ExpiresAt.UnixMilli() != expiry {
		t.Errorf("session expiry = %d, want %d", got["session"].ExpiresAt.UnixMilli(), expiry)
	}
}

// Files produced by Encode must be readable by a third-party parser.
func TestEncode_ThirdPartyParser(t *testing.T) {
	future := time.Now().Add(time.Hour)
	data := func() []byte {
		var buf bytes.Buffer
		err := Encode(&buf, []Record{
			{Key: "a", Value: "1"},
			{Key: "b", Value: "two", ExpiresAt: future},
		}, EncodeOptions{})
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		return buf.Bytes()
	}()

	seen := map[string]string{}
	dec := parser.NewDecoder(bytes.NewReader(data))
	err := dec.Parse(func(o parser.RedisObject) bool {
		if o.GetType() == parser.StringType {
			str := o.(*parser.StringObject)
			seen[str.Key] = string(str.Value)
			if str.Key == "b" && str.GetExpiration() == nil {
				t.Error("expiry of b was lost")
			}
		}
		return true
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if seen["a"] != "1" || seen["b"] != "two" {
		t.Errorf("parsed = %v", seen)
	}
}
