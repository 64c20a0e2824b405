package tlsconfig_test

import (
	"crypto/tls"
	"testing"

	"github.com/influxdata/alertd/tlsconfig"
	"github.com/stretchr/testify/require"
)

func TestConfig_Parse(t *testing.T) {
	testCases := []struct {
		name string
		c    tlsconfig.Config
		exp  *tls.Config
		err  string
	}{
		{
			name: "empty",
			exp:  &tls.Config{},
		},
		{
			name: "versions",
			c:    tlsconfig.Config{MinVersion: "tls1.2", MaxVersion: "1.3"},
			exp:  &tls.Config{MinVersion: tls.VersionTLS12, MaxVersion: tls.VersionTLS13},
		},
		{
			name: "ciphers",
			c: tlsconfig.Config{Ciphers: []string{
				"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
				"tls_ecdhe_ecdsa_with_aes_256_gcm_sha384",
			}},
			exp: &tls.Config{CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			}},
		},
		{
			name: "unknown cipher",
			c:    tlsconfig.Config{Ciphers: []string{"TLS_RSA_WITH_RC4_128_SHA"}},
			err:  `unknown cipher suite: "TLS_RSA_WITH_RC4_128_SHA"`,
		},
		{
			name: "unknown version",
			c:    tlsconfig.Config{MinVersion: "SSL3.0"},
			err:  `unknown tls version: "SSL3.0". available versions: TLS1.0, TLS1.1, TLS1.2, TLS1.3`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.c.Parse()
			if tc.err != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.exp.MinVersion, got.MinVersion)
			require.Equal(t, tc.exp.MaxVersion, got.MaxVersion)
			require.Equal(t, tc.exp.CipherSuites, got.CipherSuites)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, tlsconfig.NewConfig().Validate())
	require.Error(t, tlsconfig.Config{MinVersion: "1.3", MaxVersion: "1.2"}.Validate())
	require.Error(t, tlsconfig.Config{MaxVersion: "2.0"}.Validate())
}

func TestConfig_ServerMissingFiles(t *testing.T) {
	_, err := tlsconfig.NewConfig().Server("/no/such/cert.pem", "/no/such/key.pem")
	require.Error(t, err)
}
