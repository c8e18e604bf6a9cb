package browserkernel

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestExtractArtifactsBase64StringField(t *testing.T) {
	raw := []byte("hello world")
	payload, _ := json.Marshal(map[string]any{
		"bytes":        base64.StdEncoding.EncodeToString(raw),
		"content_type": "image/png",
	})

	normalised, artifacts := extractArtifacts("preview", payload)
	if len(artifacts) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(artifacts))
	}
	if artifacts[0].ContentType != "image/png" {
		t.Fatalf("content type = %q, want image/png", artifacts[0].ContentType)
	}
	if artifacts[0].ByteLen != len(raw) {
		t.Fatalf("byte_len = %d, want %d", artifacts[0].ByteLen, len(raw))
	}

	var m map[string]any
	if err := json.Unmarshal(normalised, &m); err != nil {
		t.Fatalf("normalised output isn't valid JSON: %v", err)
	}
	if _, ok := m["bytes"]; ok {
		t.Fatal("normalised output should not retain the raw bytes field")
	}
	if m["byte_len"].(float64) != float64(len(raw)) {
		t.Fatalf("byte_len in output = %v, want %d", m["byte_len"], len(raw))
	}
}

func TestExtractArtifactsIntArrayField(t *testing.T) {
	payload := json.RawMessage(`{"bytes":[104,105]}`)

	normalised, artifacts := extractArtifacts("shot", payload)
	if len(artifacts) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(artifacts))
	}
	decoded, err := base64.StdEncoding.DecodeString(artifacts[0].DataBase64)
	if err != nil {
		t.Fatalf("DataBase64 isn't valid base64: %v", err)
	}
	if string(decoded) != "hi" {
		t.Fatalf("decoded artifact = %q, want %q", decoded, "hi")
	}

	var m map[string]any
	json.Unmarshal(normalised, &m)
	if _, ok := m["bytes_base64"]; !ok {
		t.Fatal("expected normalised output to carry bytes_base64")
	}
}

func TestExtractArtifactsNoBytesFieldIsNoop(t *testing.T) {
	payload := json.RawMessage(`{"clicked":true}`)
	normalised, artifacts := extractArtifacts("click", payload)
	if artifacts != nil {
		t.Fatalf("expected no artifacts, got %v", artifacts)
	}
	if string(normalised) != string(payload) {
		t.Fatalf("expected output unchanged, got %s", normalised)
	}
}

func TestExtractArtifactsEmptyOutput(t *testing.T) {
	normalised, artifacts := extractArtifacts("x", nil)
	if artifacts != nil || normalised != nil {
		t.Fatal("expected empty in, empty out")
	}
}
