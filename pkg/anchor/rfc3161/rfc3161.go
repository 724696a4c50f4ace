// Package rfc3161 obtains RFC 3161 timestamp tokens over chain-head hashes
// from an external Time Stamping Authority. The token proves the hash existed
// no later than the TSA's signing time; verification of the token itself is
// the TSA ecosystem's job, the core only stores and returns it.
package rfc3161

import (
	"bytes"
	"context"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrInvalidDigest = errors.New("invalid digest")
	ErrInvalidOID    = errors.New("invalid policy oid")
	ErrTSA           = errors.New("tsa request failed")
)

var oidSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type messageImprint struct {
	HashAlgorithm algorithmIdentifier
	HashedMessage []byte
}

type timeStampReq struct {
	Version        int
	MessageImprint messageImprint
	ReqPolicy      asn1.ObjectIdentifier `asn1:"optional"`
	CertReq        bool                  `asn1:"optional"`
}

// Client posts DER timestamp queries to a TSA endpoint.
type Client struct {
	httpClient *http.Client
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Second}
	}
	return &Client{httpClient: httpClient}
}

// BuildRequestFromHashHex encodes a timestamp query for a lowercase 64-char
// hex SHA-256 digest, the form every hash in the system already uses.
func BuildRequestFromHashHex(digestHex, policyOID string) ([]byte, error) {
	s := strings.TrimSpace(digestHex)
	if s != strings.ToLower(s) {
		return nil, ErrInvalidDigest
	}
	digest, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidDigest, len(digest))
	}

	req := timeStampReq{
		Version: 1,
		MessageImprint: messageImprint{
			HashAlgorithm: algorithmIdentifier{
				Algorithm: oidSHA256,
				Parameters: asn1.RawValue{
					Class: asn1.ClassUniversal,
					Tag:   asn1.TagNull,
				},
			},
			HashedMessage: digest,
		},
		CertReq: true,
	}
	if p := strings.TrimSpace(policyOID); p != "" {
		oid, err := parseOID(p)
		if err != nil {
			return nil, err
		}
		req.ReqPolicy = oid
	}
	return asn1.Marshal(req)
}

// RequestToken posts the DER query and returns the raw timestamp reply.
func (c *Client) RequestToken(ctx context.Context, tsaURL string, reqDER []byte) (token []byte, contentType string, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tsaURL, bytes.NewReader(reqDER))
	if err != nil {
		return nil, "", err
	}
	httpReq.Header.Set("Content-Type", "application/timestamp-query")
	httpReq.Header.Set("Accept", "application/timestamp-reply")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTSA, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTSA, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.Header.Get("Content-Type"), fmt.Errorf("%w: http status %d", ErrTSA, resp.StatusCode)
	}
	if len(body) == 0 {
		return nil, resp.Header.Get("Content-Type"), fmt.Errorf("%w: empty response", ErrTSA)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func parseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return nil, ErrInvalidOID
	}
	out := make(asn1.ObjectIdentifier, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, ErrInvalidOID
		}
		n := 0
		for _, ch := range p {
			if ch < '0' || ch > '9' {
				return nil, ErrInvalidOID
			}
			n = n*10 + int(ch-'0')
		}
		out = append(out, n)
	}
	return out, nil
}
