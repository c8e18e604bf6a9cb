package browserkernel

import (
	"encoding/base64"
	"encoding/json"
)

// extractArtifacts implements spec §3/§4.6 step 5/P4: any output field
// named "bytes" (either a base64 string or a JSON array of byte values) is
// pulled out into an Artifact, the raw bytes removed from the output and
// replaced with bytes_base64 + byte_len. This is the single well-known
// location artifact extraction happens (spec §9 design note) — callers
// never base64-encode bytes themselves.
func extractArtifacts(label string, output json.RawMessage) (json.RawMessage, []Artifact) {
	if len(output) == 0 {
		return output, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(output, &m); err != nil {
		return output, nil
	}
	raw, ok := m["bytes"]
	if !ok {
		return output, nil
	}

	data, ok := decodeBytesField(raw)
	if !ok {
		return output, nil
	}

	b64 := base64.StdEncoding.EncodeToString(data)
	contentType := "application/octet-stream"
	if ctRaw, ok := m["content_type"]; ok {
		var ct string
		if err := json.Unmarshal(ctRaw, &ct); err == nil && ct != "" {
			contentType = ct
		}
	}

	delete(m, "bytes")
	m["bytes_base64"] = mustMarshal(b64)
	m["byte_len"] = mustMarshal(len(data))

	normalised, err := json.Marshal(m)
	if err != nil {
		return output, nil
	}

	artifact := Artifact{
		Label:       label,
		ContentType: contentType,
		DataBase64:  b64,
		ByteLen:     len(data),
	}
	return normalised, []Artifact{artifact}
}

// decodeBytesField accepts either a base64-encoded JSON string or a JSON
// array of byte values (0-255).
func decodeBytesField(raw json.RawMessage) ([]byte, bool) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if decoded, err := base64.StdEncoding.DecodeString(asString); err == nil {
			return decoded, true
		}
	}
	var asInts []int
	if err := json.Unmarshal(raw, &asInts); err == nil {
		out := make([]byte, len(asInts))
		for i, v := range asInts {
			out[i] = byte(v)
		}
		return out, true
	}
	return nil, false
}

func mustMarshal(v any) json.RawMessage {
	out, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return out
}
