package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/thraxil/imgsource/source"
)

var errForbidden = errors.New("identifier not allowed")

// accessPolicy decides which identifiers the views will open on behalf of
// a client. file: URIs must point inside one of fileRoots and http(s)
// hosts must match allowedHosts. Custom schemes are configured by the
// operator and always pass.
type accessPolicy struct {
	fileRoots    []string
	realRoots    []string
	allowedHosts []string
}

// newAccessPolicy takes the roots as absolute paths (relative ones are
// made absolute) and host patterns: "example.com", ".example.com" for the
// domain and its subdomains, or "*" for any host.
func newAccessPolicy(fileRoots, allowedHosts []string) *accessPolicy {
	p := &accessPolicy{}
	for _, root := range fileRoots {
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		p.fileRoots = append(p.fileRoots, abs)
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			p.realRoots = append(p.realRoots, real)
		}
	}
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			p.allowedHosts = append(p.allowedHosts, h)
		}
	}
	return p
}

// Check returns an error wrapping errForbidden when u may not be opened.
func (p *accessPolicy) Check(u *url.URL) error {
	switch source.Classify(u.Scheme) {
	case source.StrategyFile:
		return p.checkFile(u)
	case source.StrategyNetwork:
		return p.checkHost(u)
	}
	return nil
}

func (p *accessPolicy) checkFile(u *url.URL) error {
	name := u.Path
	if name == "" && u.Opaque != "" {
		unescaped, err := url.PathUnescape(u.Opaque)
		if err != nil {
			// let the file strategy report it as malformed
			return nil
		}
		name = unescaped
	}
	abs, err := filepath.Abs(filepath.FromSlash(name))
	if err != nil {
		return fmt.Errorf("%w: %s", errForbidden, u.Redacted())
	}
	if !within(abs, p.fileRoots) {
		return fmt.Errorf("%w: %s is outside the file roots", errForbidden, u.Redacted())
	}
	// a symlink inside a root must not lead out of it
	if real, err := filepath.EvalSymlinks(abs); err == nil && !within(real, p.realRoots) {
		return fmt.Errorf("%w: %s is outside the file roots", errForbidden, u.Redacted())
	}
	return nil
}

func within(name string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, name)
		if err != nil || filepath.IsAbs(rel) {
			continue
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return true
	}
	return false
}

func (p *accessPolicy) checkHost(u *url.URL) error {
	host := strings.ToLower(u.Hostname())
	if host != "" {
		for _, pattern := range p.allowedHosts {
			switch {
			case pattern == "*":
				return nil
			case strings.HasPrefix(pattern, "."):
				if host == pattern[1:] || strings.HasSuffix(host, pattern) {
					return nil
				}
			case host == pattern:
				return nil
			}
		}
	}
	return fmt.Errorf("%w: host %q is not allowed", errForbidden, host)
}

// checkRedirect applies the host rules to every redirect target.
func (p *accessPolicy) checkRedirect(req *http.Request, via []*http.Request) error {
	return p.checkHost(req.URL)
}

// denyPrivateAddresses is a net.Dialer Control func. It runs after name
// resolution, so names that point at internal addresses are caught too.
func denyPrivateAddresses(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errForbidden, address)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: %s is not an IP address", errForbidden, host)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() {
		return fmt.Errorf("%w: %s is a private address", errForbidden, ip)
	}
	return nil
}
