package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/nodebase/internal/config"
)

// File names used inside a certificate directory.
const (
	CACertName = "tls_ca.crt"
	CertName   = "tls.crt"
	KeyName    = "tls.key"
)

var ErrNoCertificate = errors.New("tls enabled but no certificate configured")

// parseVersion maps a config string onto a tls version constant.
func parseVersion(ver string) (uint16, bool) {
	switch strings.ToLower(ver) {
	case "1.2", "tls1.2":
		return tls.VersionTLS12, true
	case "1.3", "tls1.3":
		return tls.VersionTLS13, true
	default:
		return 0, false
	}
}

// resolveVersions defaults both bounds to TLS 1.3.
func resolveVersions(cfg *config.TLSConfig) (minVer, maxVer uint16, err error) {
	minVer, maxVer = tls.VersionTLS13, tls.VersionTLS13
	if cfg.MinVersion != "" && cfg.MinVersion != "default" {
		v, ok := parseVersion(cfg.MinVersion)
		if !ok {
			return 0, 0, fmt.Errorf("unsupported tls min_version %q", cfg.MinVersion)
		}
		minVer = v
	}
	if cfg.MaxVersion != "" && cfg.MaxVersion != "default" {
		v, ok := parseVersion(cfg.MaxVersion)
		if !ok {
			return 0, 0, fmt.Errorf("unsupported tls max_version %q", cfg.MaxVersion)
		}
		maxVer = v
	}
	if minVer > maxVer {
		return 0, 0, fmt.Errorf("tls min_version %q is above max_version %q", cfg.MinVersion, cfg.MaxVersion)
	}
	return minVer, maxVer, nil
}

// safeReadFile reads p, refusing paths that escape baseDir.
func safeReadFile(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	if baseDir != "" {
		absBase, _ := filepath.Abs(baseDir)
		absFile, _ := filepath.Abs(clean)
		if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) && absFile != absBase {
			return nil, errors.New("file path outside of allowed directory")
		}
	}
	return os.ReadFile(clean)
}

// certificateLoader rereads the pair on every handshake so rotated
// certificates are picked up without a restart.
func certificateLoader(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	baseDir := filepath.Dir(certFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certPEM, err := safeReadFile(baseDir, certFile)
		if err != nil {
			return nil, err
		}
		keyPEM, err := os.ReadFile(filepath.Clean(keyFile))
		if err != nil {
			return nil, err
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, err
		}
		return &cert, nil
	}
}

// SetupTLS builds the server tls.Config. It returns nil when TLS is off.
//
// Explicit cert_file/key_file win; otherwise the pair is read from dir,
// generating a self-signed one first when auto_generate is set.
func SetupTLS(cfg *config.TLSConfig) (*tls.Config, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	minVer, maxVer, err := resolveVersions(cfg)
	if err != nil {
		return nil, err
	}

	certPath, keyPath := cfg.CertFile, cfg.KeyFile
	if certPath == "" || keyPath == "" {
		if cfg.Dir == "" {
			return nil, ErrNoCertificate
		}
		certPath = filepath.Join(cfg.Dir, CertName)
		keyPath = filepath.Join(cfg.Dir, KeyName)
		if cfg.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if err := generateCertificate(cfg.AutoGen, cfg.Dir); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	// Fail at startup rather than on the first handshake.
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}

	// #nosec G402 min version is configurable down to 1.2 only
	return &tls.Config{
		GetCertificate: certificateLoader(certPath, keyPath),
		MinVersion:     minVer,
		MaxVersion:     maxVer,
	}, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func orDefaultSlice(value, def []string) []string {
	if len(value) == 0 {
		return def
	}
	return value
}

func generateCertificate(gen *config.AutoGenTLS, destDir string) error {
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if gen == nil {
		gen = &config.AutoGenTLS{}
	}
	validDays := gen.ValidDays
	if validDays <= 0 {
		validDays = 365 * 5
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   orDefault(gen.CommonName, "localhost"),
		Organization: orDefault(gen.Organization, "nodebase"),
		DNSNames:     orDefaultSlice(gen.DNSNames, []string{"localhost"}),
		IPAddresses:  orDefaultSlice(gen.IPAddresses, []string{"127.0.0.1", "::1"}),
		NotAfter:     time.Now().AddDate(0, 0, validDays),
		CertPath:     filepath.Join(destDir, CertName),
		KeyPath:      filepath.Join(destDir, KeyName),
		CACertPath:   filepath.Join(destDir, CACertName),
	})
}
