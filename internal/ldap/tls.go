package ldap

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Peer certificate policies, from least to most strict.
const (
	ReqCertNever  = "never"
	ReqCertAllow  = "allow"
	ReqCertTry    = "try"
	ReqCertDemand = "demand"
	ReqCertHard   = "hard"
)

// CRL checking modes.
const (
	CRLCheckNone = "none"
	CRLCheckPeer = "peer"
	CRLCheckAll  = "all"
)

// tlsSettings accumulates TLS material from the configuration. The
// *tls.Config is built when a connection is made.
type tlsSettings struct {
	rootCAs      *x509.CertPool
	certFile     string
	keyFile      string
	certificates []tls.Certificate
	cipherSuites []uint16
	reqCert      string
	crlCheck     string
	crls         []*x509.RevocationList
}

func newTLSSettings() *tlsSettings {
	return &tlsSettings{reqCert: ReqCertDemand, crlCheck: CRLCheckNone}
}

// config returns the client TLS configuration for a server name.
func (t *tlsSettings) config(serverName string) *tls.Config {
	cfg := &tls.Config{
		ServerName:   serverName,
		RootCAs:      t.rootCAs,
		Certificates: t.certificates,
		CipherSuites: t.cipherSuites,
	}

	switch t.reqCert {
	case ReqCertNever, ReqCertAllow:
		cfg.InsecureSkipVerify = true
	}

	if t.crlCheck != CRLCheckNone && len(t.crls) > 0 {
		cfg.VerifyConnection = t.verifyRevocation
	}

	return cfg
}

func (t *tlsSettings) pool() *x509.CertPool {
	if t.rootCAs == nil {
		t.rootCAs = x509.NewCertPool()
	}
	return t.rootCAs
}

// addCAFile adds every PEM certificate in path to the trust pool.
func (t *tlsSettings) addCAFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !t.pool().AppendCertsFromPEM(data) {
		return fmt.Errorf("no PEM certificates found in %s", path)
	}
	return nil
}

// addCADir adds the certificates of every regular file in dir. Files that
// hold no certificates, such as CRLs stored alongside, are ignored.
func (t *tlsSettings) addCADir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	added := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if t.pool().AppendCertsFromPEM(data) {
			added++
		}
	}

	if added == 0 {
		return fmt.Errorf("no PEM certificates found in %s", dir)
	}
	return nil
}

// loadKeyPair loads the client certificate once both halves are known.
func (t *tlsSettings) loadKeyPair() error {
	cert, err := tls.LoadX509KeyPair(t.certFile, t.keyFile)
	if err != nil {
		return err
	}
	t.certificates = []tls.Certificate{cert}
	return nil
}

// addCRLFile loads one or more CRLs from a PEM or DER file.
func (t *tlsSettings) addCRLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	crls, err := parseCRLs(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	t.crls = append(t.crls, crls...)
	return nil
}

func parseCRLs(data []byte) ([]*x509.RevocationList, error) {
	var crls []*x509.RevocationList

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "X509 CRL" {
			continue
		}
		crl, err := x509.ParseRevocationList(block.Bytes)
		if err != nil {
			return nil, err
		}
		crls = append(crls, crl)
	}

	if len(crls) > 0 {
		return crls, nil
	}

	// not PEM, try DER
	crl, err := x509.ParseRevocationList(data)
	if err != nil {
		return nil, fmt.Errorf("no CRL found: %w", err)
	}
	return []*x509.RevocationList{crl}, nil
}

// verifyRevocation rejects the handshake when a checked certificate appears
// on a CRL issued by its issuer.
func (t *tlsSettings) verifyRevocation(cs tls.ConnectionState) error {
	certs := cs.PeerCertificates
	if t.crlCheck == CRLCheckPeer && len(certs) > 1 {
		certs = certs[:1]
	}

	for _, cert := range certs {
		issuer := findIssuer(cs.VerifiedChains, cert)
		for _, crl := range t.crls {
			if !bytes.Equal(crl.RawIssuer, cert.RawIssuer) {
				continue
			}
			if issuer != nil {
				if err := crl.CheckSignatureFrom(issuer); err != nil {
					return fmt.Errorf("CRL for %s has an invalid signature: %w", cert.Issuer, err)
				}
			}
			for _, revoked := range crl.RevokedCertificateEntries {
				if revoked.SerialNumber.Cmp(cert.SerialNumber) == 0 {
					return fmt.Errorf("certificate %q (serial %s) has been revoked", cert.Subject, cert.SerialNumber)
				}
			}
		}
	}

	return nil
}

func findIssuer(chains [][]*x509.Certificate, cert *x509.Certificate) *x509.Certificate {
	for _, chain := range chains {
		for i, c := range chain {
			if c.Equal(cert) && i+1 < len(chain) {
				return chain[i+1]
			}
		}
	}
	return nil
}

// parseCipherSuites resolves a list of Go/IANA cipher suite names separated
// by colons, commas or whitespace.
func parseCipherSuites(value string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, cs := range slices.Concat(tls.CipherSuites(), tls.InsecureCipherSuites()) {
		known[strings.ToUpper(cs.Name)] = cs.ID
	}

	names := strings.FieldsFunc(value, func(r rune) bool {
		return r == ':' || r == ',' || r == ' ' || r == '\t'
	})
	if len(names) == 0 {
		return nil, errors.New("empty cipher suite list")
	}

	var ids []uint16
	var unknown []string
	for _, name := range names {
		id, ok := known[strings.ToUpper(name)]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		ids = append(ids, id)
	}

	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown cipher suites: %s", strings.Join(unknown, ", "))
	}
	return ids, nil
}
