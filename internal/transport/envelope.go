package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"miniapp-wallet-client/internal/apierror"
)

// unwrap strips a {"success": ..., "data": ...} envelope. Bodies without both
// keys are returned as-is. success=false is an error even on a 2xx status.
func unwrap(status int, body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return trimmed, nil
	}

	rawSuccess, hasSuccess := probe["success"]
	if !hasSuccess {
		return trimmed, nil
	}
	var ok bool
	if err := json.Unmarshal(rawSuccess, &ok); err != nil {
		return trimmed, nil
	}
	if !ok {
		return nil, parseError(status, trimmed)
	}

	data, hasData := probe["data"]
	if !hasData {
		return trimmed, nil
	}
	return data, nil
}

func decodePayload(status int, body []byte, out any) error {
	payload, err := unwrap(status, body)
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		e := apierror.API(status, "INVALID_RESPONSE", "malformed response body")
		e.Err = err
		return e
	}
	return nil
}

type errorBody struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
	Detail  json.RawMessage `json:"detail"`
	Code    json.RawMessage `json:"code"`
}

// parseError normalizes a failed response. The server message is taken from
// message, error or detail, in that order. FastAPI-style detail arrays are joined.
func parseError(status int, body []byte) *apierror.Error {
	var eb errorBody
	if err := json.Unmarshal(bytes.TrimSpace(body), &eb); err != nil {
		return apierror.API(status, "", "")
	}

	message := eb.Message
	code := scalar(eb.Code)

	if message == "" && len(eb.Error) > 0 {
		if s := scalar(eb.Error); s != "" {
			message = s
		} else {
			var nested struct {
				Message string          `json:"message"`
				Code    json.RawMessage `json:"code"`
			}
			if json.Unmarshal(eb.Error, &nested) == nil {
				message = nested.Message
				if code == "" {
					code = scalar(nested.Code)
				}
			}
		}
	}
	if message == "" && len(eb.Detail) > 0 {
		message = detailMessage(eb.Detail)
	}

	if code == "" && status == http.StatusUnauthorized {
		code = "UNAUTHORIZED"
	}
	return apierror.API(status, code, message)
}

func detailMessage(raw json.RawMessage) string {
	if s := scalar(raw); s != "" {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if it.Msg != "" {
			parts = append(parts, it.Msg)
		}
	}
	return strings.Join(parts, "; ")
}

// scalar returns a JSON string or number as text, or "".
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
		return ""
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}
