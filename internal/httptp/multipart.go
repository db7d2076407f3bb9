package httptp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"slices"
	"strings"

	"github.com/andreassavva/relay/internal/network"
)

// encodeMultipart builds a GraphQL multipart request: an "operations" field
// holding the JSON body, a "map" field relating each file part to the
// variables path it fills, then one part per uploadable. Uploadable keys are
// variable paths such as "variables.file" or "variables.files.0".
func encodeMultipart(body requestBody, uploadables network.Uploadables) (io.Reader, string, error) {
	keys := make([]string, 0, len(uploadables))
	for k := range uploadables {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	ops, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("httptp: encode operations: %w", err)
	}
	fileMap := make(map[string][]string, len(keys))
	for i, k := range keys {
		fileMap[fmt.Sprint(i)] = []string{uploadPath(k)}
	}
	mapJSON, err := json.Marshal(fileMap)
	if err != nil {
		return nil, "", fmt.Errorf("httptp: encode map: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("operations", string(ops)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("map", string(mapJSON)); err != nil {
		return nil, "", err
	}
	for i, k := range keys {
		u := uploadables[k]
		name := u.Filename
		if name == "" {
			name = k
		}
		ct := u.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			`form-data; name="`+fmt.Sprint(i)+`"; filename="`+escapeQuotes(name)+`"`)
		header.Set("Content-Type", ct)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if u.Body != nil {
			if _, err := io.Copy(part, u.Body); err != nil {
				return nil, "", fmt.Errorf("httptp: read uploadable %q: %w", k, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func uploadPath(key string) string {
	if strings.HasPrefix(key, "variables.") {
		return key
	}
	return "variables." + key
}

func escapeQuotes(s string) string {
	var buf strings.Builder
	for _, b := range []byte(s) {
		if b == '"' || b == '\\' {
			buf.WriteByte('\\')
		}
		buf.WriteByte(b)
	}
	return buf.String()
}
