package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func requiredEnv() map[string]string {
	return map[string]string{
		"TEMPERATURE_PHANT_IRI":           "https://data.example.com/streams/PUB",
		"TEMPERATURE_PHANT_PRIVATE_KEY":   "PRIV",
		"TEMPERATURE_PARTICLE_DEVICE_ID":  "dev123",
		"TEMPERATURE_PARTICLE_ACCESS_KEY": "token",
	}
}

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestReadConfigFromEnvAppliesDefaults(t *testing.T) {
	cfg, err := ReadConfig("", envFrom(requiredEnv()))
	require.NoError(t, err)

	assert.Equal(t, "https://data.example.com/streams/PUB", cfg.StreamIRI)
	assert.Equal(t, "PRIV", cfg.StreamPrivateKey)
	assert.Equal(t, "dev123", cfg.DeviceID)
	assert.Equal(t, "token", cfg.DeviceAccessToken)
	assert.Equal(t, DEFAULT_PARTICLE_API, cfg.ParticleAPIURL)
	assert.Equal(t, []string{"temp1", "temp2", "temp3", "temp4", "temp5"}, cfg.Variables)
	assert.Equal(t, 16.0, cfg.ScaleFactor)
	assert.Equal(t, DECODE_LINEAR, cfg.Decode)
	assert.Equal(t, DEFAULT_MEASUREMENT, cfg.Influx.Measurement)
	assert.Equal(t, DEFAULT_JOB_NAME, cfg.JobName)
	assert.Zero(t, cfg.Timeout())
	assert.False(t, cfg.Influx.Enabled())
}

func TestReadConfigDefaultsAreNotShared(t *testing.T) {
	cfg, err := ReadConfig("", envFrom(requiredEnv()))
	require.NoError(t, err)

	cfg.Variables[0] = "changed"
	assert.Equal(t, "temp1", DEFAULT_VARIABLES[0])
}

func TestReadConfigTOMLWithEnvOverride(t *testing.T) {
	path := writeConfig(t, "logger.toml", `
stream_iri = "https://file.example.com/streams/FILE"
stream_private_key = "FILEPRIV"
device_id = "filedev"
device_access_token = "filetoken"
variables = ["a", "b"]
scale_factor = 10.0
decode = "mcp9808"
http_timeout = "45s"
max_concurrent_reads = 2

[influx]
url = "http://localhost:8086"
database = "sensors"
`)

	env := map[string]string{"TEMPERATURE_PARTICLE_DEVICE_ID": "envdev"}
	cfg, err := ReadConfig(path, envFrom(env))
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com/streams/FILE", cfg.StreamIRI)
	assert.Equal(t, "envdev", cfg.DeviceID)
	assert.Equal(t, []string{"a", "b"}, cfg.Variables)
	assert.Equal(t, 10.0, cfg.ScaleFactor)
	assert.Equal(t, DECODE_MCP9808, cfg.Decode)
	assert.Equal(t, 45*time.Second, cfg.Timeout())
	assert.Equal(t, 2, cfg.MaxConcurrentReads)
	assert.True(t, cfg.Influx.Enabled())
	assert.Equal(t, "sensors", cfg.Influx.DatabaseDatabase)
	assert.Equal(t, DEFAULT_MEASUREMENT, cfg.Influx.Measurement)
}

func TestReadConfigYAML(t *testing.T) {
	path := writeConfig(t, "logger.yaml", `
stream_iri: https://file.example.com/streams/FILE
stream_private_key: FILEPRIV
device_id: filedev
device_access_token: filetoken
pushgateway_url: http://localhost:9091
influx:
  url: http://localhost:8086
  measurement: greenhouse
`)

	cfg, err := ReadConfig(path, envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "filedev", cfg.DeviceID)
	assert.Equal(t, "http://localhost:9091", cfg.PushGatewayURL)
	assert.Equal(t, "greenhouse", cfg.Influx.Measurement)
}

func TestReadConfigEnvLists(t *testing.T) {
	env := requiredEnv()
	env["TEMPERATURE_VARIABLES"] = " t1, t2 ,,t3 "
	env["TEMPERATURE_SCALE_FACTOR"] = "8"
	env["TEMPERATURE_MAX_CONCURRENT_READS"] = "3"

	cfg, err := ReadConfig("", envFrom(env))
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2", "t3"}, cfg.Variables)
	assert.Equal(t, 8.0, cfg.ScaleFactor)
	assert.Equal(t, 3, cfg.MaxConcurrentReads)
}

func TestReadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		edit func(map[string]string)
		want string
	}{
		{"missing iri", func(e map[string]string) { delete(e, "TEMPERATURE_PHANT_IRI") }, "stream_iri is required"},
		{"missing private key", func(e map[string]string) { delete(e, "TEMPERATURE_PHANT_PRIVATE_KEY") }, "stream_private_key is required"},
		{"missing device", func(e map[string]string) { delete(e, "TEMPERATURE_PARTICLE_DEVICE_ID") }, "device_id is required"},
		{"missing token", func(e map[string]string) { delete(e, "TEMPERATURE_PARTICLE_ACCESS_KEY") }, "device_access_token is required"},
		{"negative scale", func(e map[string]string) { e["TEMPERATURE_SCALE_FACTOR"] = "-2" }, "scale_factor must be positive"},
		{"bad scale", func(e map[string]string) { e["TEMPERATURE_SCALE_FACTOR"] = "sixteen" }, "TEMPERATURE_SCALE_FACTOR"},
		{"duplicate variable", func(e map[string]string) { e["TEMPERATURE_VARIABLES"] = "temp1,temp1" }, `"temp1" listed twice`},
		{"unknown decode", func(e map[string]string) { e["TEMPERATURE_DECODE"] = "cubic" }, "decode must be"},
		{"bad timeout", func(e map[string]string) { e["TEMPERATURE_HTTP_TIMEOUT"] = "soon" }, "http_timeout"},
		{"bad concurrency", func(e map[string]string) { e["TEMPERATURE_MAX_CONCURRENT_READS"] = "-1" }, "max_concurrent_reads must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := requiredEnv()
			tt.edit(env)
			_, err := ReadConfig("", envFrom(env))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestReadConfigFileErrors(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.toml"), envFrom(requiredEnv()))
	assert.ErrorContains(t, err, "read config")

	_, err = ReadConfig(writeConfig(t, "logger.ini", "x=1"), envFrom(requiredEnv()))
	assert.ErrorContains(t, err, "unsupported extension")

	_, err = ReadConfig(writeConfig(t, "logger.toml", "variables = ["), envFrom(requiredEnv()))
	assert.ErrorContains(t, err, "decode toml config")
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := ReadConfig("temperature-logger.example.toml", envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "https://data.sparkfun.com/streams/PUBLIC_KEY", cfg.StreamIRI)
	assert.Len(t, cfg.Variables, 5)
	assert.False(t, cfg.Influx.Enabled())
}
