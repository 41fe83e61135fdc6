package model

import "encoding/json"

// ExtractAudioURL pulls the media URL out of an upstream output field. The
// upstream represents it as a bare string, a non-empty list whose first
// element is the URL (or an object carrying one), or an object with a url
// field. Any other shape yields false.
func ExtractAudioURL(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var output interface{}
	if err := json.Unmarshal(raw, &output); err != nil {
		return "", false
	}

	switch v := output.(type) {
	case string:
		return v, v != ""
	case []interface{}:
		if len(v) == 0 {
			return "", false
		}
		return urlFromValue(v[0])
	case map[string]interface{}:
		return urlFromValue(v)
	}
	return "", false
}

func urlFromValue(v interface{}) (string, bool) {
	switch item := v.(type) {
	case string:
		return item, item != ""
	case map[string]interface{}:
		if u, ok := item["url"].(string); ok && u != "" {
			return u, true
		}
	}
	return "", false
}
