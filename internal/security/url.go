// Package security decides which image URLs the editor canvas may load.
package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ImagePolicy controls which image URLs are rendered as <img> elements.
// URLs that fail the policy are shown as a placeholder.
type ImagePolicy struct {
	// AllowPrivateHosts permits localhost, loopback, private and link-local hosts.
	AllowPrivateHosts bool
	// AllowDataURLs permits inline data:image/... URLs.
	AllowDataURLs bool
}

// DefaultImagePolicy allows public http(s) images and inline data images.
var DefaultImagePolicy = ImagePolicy{AllowDataURLs: true}

// ValidateImageURL checks rawURL against DefaultImagePolicy.
func ValidateImageURL(rawURL string) error {
	return DefaultImagePolicy.Validate(rawURL)
}

// Validate returns an error describing why rawURL may not be rendered.
func (p ImagePolicy) Validate(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fmt.Errorf("image URL is empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "data" {
		if !p.AllowDataURLs {
			return fmt.Errorf("data URLs are not allowed")
		}
		if !strings.HasPrefix(strings.ToLower(parsed.Opaque), "image/") {
			return fmt.Errorf("data URL must carry an image media type")
		}
		return nil
	}

	// Only allow http and https schemes
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a host")
	}
	if p.AllowPrivateHosts {
		return nil
	}
	return checkPublicHost(host)
}

func checkPublicHost(host string) error {
	// Block localhost variations
	hostLower := strings.ToLower(host)
	if hostLower == "localhost" || hostLower == "localhost.localdomain" {
		return fmt.Errorf("images from localhost are not allowed")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Hostnames are not resolved; the browser fetches the image, not the server.
		return nil
	}

	// Block loopback addresses (127.0.0.0/8, ::1)
	if ip.IsLoopback() {
		return fmt.Errorf("images from loopback addresses are not allowed")
	}

	// Block private network addresses
	if ip.IsPrivate() {
		return fmt.Errorf("images from private network addresses are not allowed")
	}

	// Block link-local addresses (169.254.0.0/16, fe80::/10)
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("images from link-local addresses are not allowed")
	}

	// Block unspecified addresses (0.0.0.0, ::)
	if ip.IsUnspecified() {
		return fmt.Errorf("images from unspecified addresses are not allowed")
	}

	return nil
}
