package message

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/flux-framework/flux-go/internal/ferrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// cachedJSON holds the payload as a string for UnpackGet's gjson-backed
// path (spec §9: "generic path (parse-on-demand tree)"). No parsed tree
// is kept.
type cachedJSON struct {
	raw string
}

// PackTyped marshals v (typically a struct with json tags) to a compact
// JSON payload using the typed codec path (spec §4.1, §9).
func (m *Message) PackTyped(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return ferrors.Wrap(ferrors.Protocol, 0, err, "EINVAL: pack failed")
	}
	m.SetPayload(b)
	return nil
}

// UnpackTyped parses the cached payload into v using the typed codec
// path. Failure sets LastError and returns an EPROTO-class error.
func (m *Message) UnpackTyped(v any) error {
	payload, ok := m.Payload()
	if !ok || len(payload) == 0 {
		m.lastErr = "no payload present"
		return ferrors.New(ferrors.Protocol, 0, "EPROTO: %s", m.lastErr)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		m.lastErr = err.Error()
		return ferrors.Wrap(ferrors.Protocol, 0, err, "EPROTO: unpack failed")
	}
	m.lastErr = ""
	return nil
}

// UnpackGet projects a single field out of the payload via the generic
// gjson path (spec §9's "generic path" for services that want ad-hoc
// field access without a typed struct). The payload string is cached
// per distinct payload, but gjson scans it again on every call.
func (m *Message) UnpackGet(path string) (gjson.Result, error) {
	payload, ok := m.Payload()
	if !ok || len(payload) == 0 {
		m.lastErr = "no payload present"
		return gjson.Result{}, ferrors.New(ferrors.Protocol, 0, "EPROTO: %s", m.lastErr)
	}
	if m.jsonCache == nil || m.jsonCache.raw != string(payload) {
		m.jsonCache = &cachedJSON{raw: string(payload)}
	}
	res := gjson.Get(m.jsonCache.raw, path)
	if !res.Exists() {
		m.lastErr = "field not found: " + path
		return gjson.Result{}, ferrors.New(ferrors.Protocol, 0, "EPROTO: %s", m.lastErr)
	}
	m.lastErr = ""
	return res, nil
}

// PackSet sets a single field in the payload (creating the payload if
// absent) via the generic sjson path, the write-side counterpart to
// UnpackGet.
func (m *Message) PackSet(path string, value any) error {
	payload, _ := m.Payload()
	out, err := sjson.SetBytes(payload, path, value)
	if err != nil {
		return ferrors.Wrap(ferrors.Protocol, 0, err, "EINVAL: pack-set failed")
	}
	m.SetPayload(out)
	return nil
}
