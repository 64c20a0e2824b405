// Package tlsconfig restricts the TLS versions and cipher suites a listener accepts.
package tlsconfig

import (
	"crypto/tls"
	"fmt"
	"sort"
	"strings"
)

type Config struct {
	// Cipher suite names as in crypto/tls, e.g. TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256.
	// Empty keeps the Go defaults.
	Ciphers    []string `toml:"ciphers"`
	MinVersion string   `toml:"min-version"`
	MaxVersion string   `toml:"max-version"`
}

func NewConfig() Config {
	return Config{}
}

func (c Config) Validate() error {
	_, err := c.Parse()
	if err != nil {
		return err
	}
	min, max := versions[strings.ToUpper(c.MinVersion)], versions[strings.ToUpper(c.MaxVersion)]
	if min != 0 && max != 0 && min > max {
		return fmt.Errorf("tls min-version %s is above max-version %s", c.MinVersion, c.MaxVersion)
	}
	return nil
}

// Parse returns the restrictions as a tls.Config.
func (c Config) Parse() (*tls.Config, error) {
	out := new(tls.Config)
	for _, name := range c.Ciphers {
		id, ok := cipherSuite(name)
		if !ok {
			return nil, unknownCipher(name)
		}
		out.CipherSuites = append(out.CipherSuites, id)
	}
	if c.MinVersion != "" {
		v, ok := versions[strings.ToUpper(c.MinVersion)]
		if !ok {
			return nil, unknownVersion(c.MinVersion)
		}
		out.MinVersion = v
	}
	if c.MaxVersion != "" {
		v, ok := versions[strings.ToUpper(c.MaxVersion)]
		if !ok {
			return nil, unknownVersion(c.MaxVersion)
		}
		out.MaxVersion = v
	}
	return out, nil
}

// Server returns the restrictions together with the key pair read from certFile and keyFile.
func (c Config) Server(certFile, keyFile string) (*tls.Config, error) {
	out, err := c.Parse()
	if err != nil {
		return nil, err
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("could not load TLS key/certificate: %s", err)
	}
	out.Certificates = []tls.Certificate{cert}
	return out, nil
}

func cipherSuite(name string) (uint16, bool) {
	name = strings.ToUpper(name)
	for _, s := range tls.CipherSuites() {
		if s.Name == name {
			return s.ID, true
		}
	}
	return 0, false
}

func unknownCipher(name string) error {
	var available []string
	for _, s := range tls.CipherSuites() {
		available = append(available, s.Name)
	}
	sort.Strings(available)
	return fmt.Errorf("unknown cipher suite: %q. available ciphers: %s",
		name, strings.Join(available, ", "))
}

var versions = map[string]uint16{
	"TLS1.0": tls.VersionTLS10,
	"1.0":    tls.VersionTLS10,
	"TLS1.1": tls.VersionTLS11,
	"1.1":    tls.VersionTLS11,
	"TLS1.2": tls.VersionTLS12,
	"1.2":    tls.VersionTLS12,
	"TLS1.3": tls.VersionTLS13,
	"1.3":    tls.VersionTLS13,
}

func unknownVersion(name string) error {
	var available []string
	for name := range versions {
		// The bare numbers are aliases.
		if name[0] == '1' {
			continue
		}
		available = append(available, name)
	}
	sort.Strings(available)
	return fmt.Errorf("unknown tls version: %q. available versions: %s",
		name, strings.Join(available, ", "))
}
