// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/url"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05"

// Sign adds the access key, timestamp and the HmacSHA256 signature (version
// 2) parameters for a private REST request. Input values are not modified.
func Sign(method, host, path string, values url.Values, key, secret string, now time.Time) url.Values {
	params := make(url.Values)
	for k, vs := range values {
		params[k] = append([]string(nil), vs...)
	}
	params.Set("AccessKeyId", key)
	params.Set("SignatureMethod", "HmacSHA256")
	params.Set("SignatureVersion", "2")
	params.Set("Timestamp", now.UTC().Format(timestampLayout))

	// Encode sorts the parameters by key.
	payload := strings.Join([]string{strings.ToUpper(method), strings.ToLower(host), path, params.Encode()}, "\n")

	hash := hmac.New(sha256.New, []byte(secret))
	io.WriteString(hash, payload)
	params.Set("Signature", base64.StdEncoding.EncodeToString(hash.Sum(nil)))
	return params
}
