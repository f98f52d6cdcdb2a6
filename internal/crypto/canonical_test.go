package crypto

import (
	"bytes"
	"testing"
)

func TestCanonicalizeJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "keys are sorted",
			input: `{"b": 2, "a": 1}`,
			want:  `{"a":1,"b":2}`,
		},
		{
			name:  "whitespace is removed",
			input: "{\n  \"a\": \"x\",\n  \"b\": [1, 2]\n}",
			want:  `{"a":"x","b":[1,2]}`,
		},
		{
			name:  "nested objects are canonicalized",
			input: `{"outer": {"z": 1, "a": {"y": 2, "b": 3}}}`,
			want:  `{"outer":{"a":{"b":3,"y":2},"z":1}}`,
		},
		{
			name:  "array order is preserved",
			input: `{"steps": [{"b":1,"a":2}, {"d":3,"c":4}]}`,
			want:  `{"steps":[{"a":2,"b":1},{"c":4,"d":3}]}`,
		},
		{
			name:    "invalid JSON is rejected",
			input:   `{"a": }`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeJSON([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CanonicalizeJSON failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalizeJSONIsStable(t *testing.T) {
	// two serializations of the same document canonicalize identically
	a := []byte(`{"provenance":"https://tf.example","steps":[{"id":"1","type":"origin"}]}`)
	b := []byte("{ \"steps\": [ { \"type\": \"origin\", \"id\": \"1\" } ], \"provenance\": \"https://tf.example\" }")

	ca, err := CanonicalizeJSON(a)
	if err != nil {
		t.Fatalf("CanonicalizeJSON failed: %v", err)
	}
	cb, err := CanonicalizeJSON(b)
	if err != nil {
		t.Fatalf("CanonicalizeJSON failed: %v", err)
	}

	if !bytes.Equal(ca, cb) {
		t.Errorf("canonical forms differ:\n%s\n%s", ca, cb)
	}
}

func TestDigestSHA256Hex(t *testing.T) {
	got := DigestSHA256Hex([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
