package imagecache

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidDataURI is returned when a persisted value cannot be decoded.
var ErrInvalidDataURI = errors.New("invalid data URI")

const defaultImageType = "application/octet-stream"

// EncodeDataURI returns a base64 data URI for data. When contentType is empty
// the type is sniffed from the bytes.
func EncodeDataURI(contentType string, data []byte) string {
	if contentType == "" {
		contentType = sniff(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a base64 data URI into its content type and bytes.
func DecodeDataURI(uri string) (contentType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}
	contentType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: only base64 payloads are stored", ErrInvalidDataURI)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if contentType == "" {
		contentType = sniff(data)
	}
	return contentType, data, nil
}

// sniff guesses an image content type. SVG is not recognized by the
// standard sniffer, which reports it as text.
func sniff(data []byte) string {
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "text/") && looksLikeSVG(data) {
		return "image/svg+xml"
	}
	if ct == "" {
		return defaultImageType
	}
	return ct
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(strings.ToLower(string(head)), "<svg")
}
