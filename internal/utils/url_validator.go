package utils

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/rmitchellscott/inkprep/internal/config"
)

var privateIPRanges = []*net.IPNet{
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
	mustParseCIDR("169.254.0.0/16"), // link-local
	mustParseCIDR("127.0.0.0/8"),
	mustParseCIDR("::1/128"),
	mustParseCIDR("fe80::/10"),
	mustParseCIDR("fc00::/7"),
}

func mustParseCIDR(cidr string) *net.IPNet {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse CIDR %s: %v", cidr, err))
	}
	return ipNet
}

// URLValidationConfig controls which image source URLs may be fetched.
type URLValidationConfig struct {
	BlockPrivateIPs bool
	BlockedDomains  []string

	// LookupIP resolves hostnames; net.LookupIP when nil.
	LookupIP func(host string) ([]net.IP, error)
}

// GetURLValidationConfig reads BLOCK_PRIVATE_IPS and the comma-separated
// BLOCKED_DOMAINS from the environment.
func GetURLValidationConfig() URLValidationConfig {
	var blocked []string
	for _, domain := range strings.Split(config.Get("BLOCKED_DOMAINS", ""), ",") {
		if domain = strings.ToLower(strings.TrimSpace(domain)); domain != "" {
			blocked = append(blocked, domain)
		}
	}
	return URLValidationConfig{
		BlockPrivateIPs: config.GetBool("BLOCK_PRIVATE_IPS", false),
		BlockedDomains:  blocked,
	}
}

// ValidateURL checks urlStr against the environment's policy.
func ValidateURL(urlStr string) error {
	return ValidateURLWithConfig(urlStr, GetURLValidationConfig())
}

// ValidateURLWithConfig accepts only http(s) URLs with a host that is not
// blocked by cfg.
func ValidateURLWithConfig(urlStr string, cfg URLValidationConfig) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q (only http and https are allowed)", parsed.Scheme)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL missing hostname")
	}

	lower := strings.ToLower(hostname)
	for _, blocked := range cfg.BlockedDomains {
		if lower == blocked || strings.HasSuffix(lower, "."+blocked) {
			return fmt.Errorf("domain %s is blocked", hostname)
		}
	}

	if !cfg.BlockPrivateIPs {
		return nil
	}

	ips := []net.IP{net.ParseIP(hostname)}
	if ips[0] == nil {
		lookup := cfg.LookupIP
		if lookup == nil {
			lookup = net.LookupIP
		}
		ips, err = lookup(hostname)
		if err != nil {
			// Unresolvable hosts fail on fetch anyway
			return nil
		}
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("private IP address %s is blocked for hostname %s", ip, hostname)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	for _, r := range privateIPRanges {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}
