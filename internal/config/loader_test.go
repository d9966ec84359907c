package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/sentinel/internal/firewall"
)

func TestLoadHCL_Full(t *testing.T) {
	src := `
schema_version = "1.0"
default_action = "allow"

api {
  listen       = "127.0.0.1:9000"
  cors_origins = ["http://localhost:3000"]
  logs_limit   = 0
  rate_limit   = 10
}

logging {
  level = "debug"
  json  = true
}

access_log {
  max_entries = 0
}

threat_detection {
  window                = "2m"
  port_scan_threshold   = 10
  brute_force_threshold = 3
}

rule {
  action   = "DENY"
  src_ip   = "10.0.0.0/24"
  dst_port = 22
  protocol = "TCP"
}

rule {
  action   = "ALLOW"
  src_ip   = "any"
  dst_port = 443
  protocol = "tcp"
}
`
	cfg, err := LoadHCL([]byte(src), "test.hcl")
	require.NoError(t, err)

	assert.Equal(t, "ALLOW", cfg.DefaultAction)
	assert.Equal(t, "127.0.0.1:9000", cfg.API.Listen)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.API.CORSOrigins)
	assert.Equal(t, 0, *cfg.API.LogsLimit, "explicit zero must survive defaults")
	assert.Equal(t, 10, *cfg.API.RateLimit)
	assert.Equal(t, DefaultMaxConnections, *cfg.API.MaxConnections)
	assert.Equal(t, 0, *cfg.AccessLog.MaxEntries)
	assert.True(t, cfg.Logging.JSON)

	tc := cfg.Threat()
	assert.Equal(t, 2*time.Minute, tc.Window)
	assert.Equal(t, 10, tc.PortScanThreshold)
	assert.Equal(t, 3, tc.BruteForceThreshold)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval())

	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, firewall.RuleDraft{Action: "DENY", SrcIP: "10.0.0.0/24", DstPort: 22, Protocol: "TCP"}, cfg.Rules[0].Draft())
}

func TestLoadHCL_EmptyUsesDefaults(t *testing.T) {
	cfg, err := LoadHCL([]byte(""), "empty.hcl")
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, cfg.SchemaVersion)
	assert.Equal(t, "DENY", cfg.DefaultAction)
	assert.Equal(t, DefaultListen, cfg.API.Listen)
	assert.Equal(t, DefaultLogsLimit, *cfg.API.LogsLimit)
	assert.Equal(t, time.Minute, cfg.Threat().Window)
	assert.True(t, cfg.MetricsEnabled())
	assert.Empty(t, cfg.Rules)
}

func TestLoadHCL_EnvFunction(t *testing.T) {
	t.Setenv("SENTINEL_TEST_LISTEN", ":7000")

	cfg, err := LoadHCL([]byte(`
api {
  listen = env("SENTINEL_TEST_LISTEN", ":8000")
}
logging {
  level = lower(env("SENTINEL_TEST_UNSET_LEVEL", "WARN"))
}
`), "env.hcl")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.API.Listen)
	assert.Equal(t, "warn", cfg.Logging.Level)

	_, err = LoadHCL([]byte(`default_action = env("SENTINEL_TEST_DEFINITELY_UNSET")`), "env.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SENTINEL_TEST_DEFINITELY_UNSET")
}

func TestLoadHCL_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"syntax", `api {`, ""},
		{"unknown attribute", `bogus = 1`, ""},
		{"bad default action", `default_action = "DROP"`, "default_action"},
		{"bad listen", `api { listen = "nope" }`, "api.listen"},
		{"negative logs limit", `api { logs_limit = -1 }`, "api.logs_limit"},
		{"bad window", `threat_detection { window = "soon" }`, "threat_detection.window"},
		{"negative threshold", `threat_detection { port_scan_threshold = -2 }`, "threat_detection.port_scan_threshold"},
		{"bad level", `logging { level = "loud" }`, "logging.level"},
		{"bad version", `schema_version = "2.0"`, "schema_version"},
		{"bad rule", `rule {
  action   = "DENY"
  src_ip   = "10.0.0.0/33"
  dst_port = 22
  protocol = "TCP"
}`, "rule[0]"},
		{"rule missing attribute", `rule {
  action = "DENY"
}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHCL([]byte(tt.src), "bad.hcl")
			require.Error(t, err)
			if tt.field != "" {
				var verrs ValidationErrors
				require.True(t, errors.As(err, &verrs), "expected ValidationErrors, got %v", err)
				assert.Equal(t, tt.field, verrs[0].Field)
			}
		})
	}
}

func TestLoadFile_HCLAndJSON(t *testing.T) {
	dir := t.TempDir()

	hclPath := filepath.Join(dir, "sentinel.hcl")
	require.NoError(t, os.WriteFile(hclPath, []byte(`default_action = " allow "`), 0o644))
	cfg, err := LoadFile(hclPath)
	require.NoError(t, err)
	assert.Equal(t, "ALLOW", cfg.DefaultAction)

	jsonPath := filepath.Join(dir, "sentinel.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
  "default_action": "DENY",
  "api": {"listen": ":9100", "logs_limit": 5},
  "rule": [
    {"action": "DENY", "src_ip": "any", "dst_port": 22, "protocol": "TCP"}
  ]
}`), 0o644))
	cfg, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.API.Listen)
	assert.Equal(t, 5, *cfg.API.LogsLimit)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, 22, cfg.Rules[0].DstPort)

	_, err = LoadFile(filepath.Join(dir, "missing.hcl"))
	assert.Error(t, err)
}

func TestLoadFile_ShippedConfig(t *testing.T) {
	cfg, err := LoadFile(filepath.Join("..", "..", "configs", "sentinel.hcl"))
	require.NoError(t, err)

	require.Len(t, cfg.Rules, 4)
	assert.Equal(t, "192.168.1.100", cfg.Rules[0].SrcIP)
	assert.Equal(t, 23, cfg.Rules[0].DstPort)
	assert.Equal(t, "10.0.0.0/8", cfg.Rules[3].SrcIP)
	assert.Equal(t, "DENY", cfg.DefaultAction)
}

func TestGenerateHCL_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Rules = []RuleConfig{{Action: "DENY", SrcIP: "any", DstPort: 22, Protocol: "TCP"}}

	out := GenerateHCL(cfg)
	assert.Contains(t, string(out), "rule {")

	back, err := LoadHCL(out, "generated.hcl")
	require.NoError(t, err)
	assert.Equal(t, cfg.Rules, back.Rules)
	assert.Equal(t, cfg.API.Listen, back.API.Listen)
	assert.Equal(t, *cfg.API.LogsLimit, *back.API.LogsLimit)
	assert.Equal(t, cfg.Threat(), back.Threat())
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("")
	require.NoError(t, err)
	assert.Equal(t, "1.0", v.String())

	v, err = ParseVersion("1.3")
	require.NoError(t, err)
	assert.True(t, IsSupportedVersion(v))
	assert.Equal(t, 1, v.Compare(SchemaVersion{Major: 1, Minor: 0}))
	assert.Equal(t, -1, v.Compare(SchemaVersion{Major: 2, Minor: 0}))

	for _, bad := range []string{"1", "a.b", "1.x"} {
		_, err := ParseVersion(bad)
		assert.Error(t, err, bad)
	}
}
