package cargohold

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/cargohold/cargohold/cloud"
)

// hostShards is the number of virtual CDN hosts a sharded host template
// spreads objects across.
const hostShards = 4

// shardToken marks the spot in a host template where the shard index is
// substituted.
const shardToken = "%d"

// DefaultExpiry is the lifetime of an expiring URL when none is given.
const DefaultExpiry = 3600 * time.Second

// PublicURL computes the unauthenticated URL for the given style.
//
// A configured host template wins: callbacks are invoked with the
// attachment, and a literal containing the %d shard token is sharded by a
// stable hash of the object path. Without a host template, AWS
// credentials compose the canonical S3 host directly; any other provider
// answers with its native public URL.
func (s *Storage) PublicURL(ctx context.Context, style string) (string, error) {
	key := s.att.Path(style)

	if !s.opts.Host.IsZero() {
		return s.hostForStyle(style) + "/" + key, nil
	}

	creds, err := s.Credentials()
	if err != nil {
		return "", err
	}
	if strings.EqualFold(creds.String("provider"), "aws") {
		return fmt.Sprintf("%s://%s/%s", s.scheme(), hostNameForDirectory(s.directoryName()), key), nil
	}

	container, err := s.Container(ctx)
	if err != nil {
		return "", err
	}
	return container.PublicURL(key), nil
}

// ExpiringURL computes a time-limited URL for the given style, valid for
// the given duration from now (DefaultExpiry when zero). When the
// connection cannot sign URLs, or the style has no path, the plain public
// URL is returned instead.
func (s *Storage) ExpiringURL(ctx context.Context, expiry time.Duration, style string) (string, error) {
	if expiry == 0 {
		expiry = DefaultExpiry
	}
	expiresAt := time.Now().Add(expiry)

	key := s.att.Path(style)
	if key == "" {
		return s.PublicURL(ctx, style)
	}

	container, err := s.Container(ctx)
	if err != nil {
		return "", err
	}
	signer, ok := container.(cloud.URLSigner)
	if !ok {
		return s.PublicURL(ctx, style)
	}

	signed, err := signer.SignedURL(ctx, key, expiresAt)
	if err != nil {
		if errors.Is(err, cloud.ErrSignedURLsUnsupported) {
			return s.PublicURL(ctx, style)
		}
		return "", err
	}

	if !s.opts.Host.IsZero() {
		signed = rewriteHost(signed, s.hostForStyle(style))
	}
	return signed, nil
}

// hostForStyle resolves the configured host template for a style:
// callbacks are invoked with the attachment; a literal containing the
// shard token gets a stable shard index derived from the object path.
func (s *Storage) hostForStyle(style string) string {
	if s.opts.Host.Func != nil {
		return s.opts.Host.Func(s.att)
	}
	host := s.opts.Host.Literal
	if strings.Contains(host, shardToken) {
		return fmt.Sprintf(host, shardIndex(s.att.Path(style)))
	}
	return host
}

// shardIndex maps an object path onto one of hostShards virtual hosts.
// CRC-32 keeps the assignment deterministic across processes and runs.
func shardIndex(path string) uint32 {
	return crc32.ChecksumIEEE([]byte(path)) % hostShards
}

// rewriteHost substitutes the signed URL's own host with the configured
// one. The substitution is textual: an occurrence of the default host
// inside a query parameter is rewritten too. That mirrors long-standing
// adapter behavior and is kept as-is.
func rewriteHost(signed, host string) string {
	u, err := url.Parse(signed)
	if err != nil || u.Host == "" {
		return signed
	}
	return strings.ReplaceAll(signed, u.Host, host)
}

// hostNameForDirectory composes the S3 host for a directory. Names safe
// to use as a DNS label ride the virtual-hosted form; everything else
// falls back to the path-style global endpoint.
func hostNameForDirectory(dir string) string {
	if subdomainSafe(dir) {
		return dir + ".s3.amazonaws.com"
	}
	return "s3.amazonaws.com/" + dir
}

// subdomainSafe reports whether an S3 bucket name can be used as a
// virtual-host subdomain: 3-63 characters of lowercase letters, digits,
// dots, and hyphens, starting and ending alphanumeric, with no empty
// labels and not shaped like an IPv4 address.
func subdomainSafe(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if net.ParseIP(name) != nil {
		return false
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= '0' && r <= '9':
			case r == '-':
			default:
				return false
			}
		}
	}
	return true
}
