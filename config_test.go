package kgraph

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadOptions_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: prod
data_dir: /tmp/kgraph-test
max_traversal_depth: 12
plan_cache_size: 32
max_result_rows: 1000
default_query_timeout: 5s
slow_query_threshold: 250ms
slow_query_log_size: 16
compaction_interval: 1m
`), 0o600))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", opts.Database)
	assert.Equal(t, "/tmp/kgraph-test", opts.DataDir)
	assert.Equal(t, 12, opts.MaxTraversalDepth)
	assert.Equal(t, 32, opts.PlanCacheSize)
	assert.Equal(t, 1000, opts.MaxResultRows)
	assert.Equal(t, 5*time.Second, opts.DefaultQueryTimeout.std())
	assert.Equal(t, 250*time.Millisecond, opts.SlowQueryThreshold.std())
	assert.Equal(t, 16, opts.SlowQueryLogSize)
	assert.Equal(t, time.Minute, opts.CompactionInterval.std())
}

func TestLoadOptions_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: staging\n"), 0o600))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	def := DefaultOptions()
	assert.Equal(t, "staging", opts.Database)
	assert.Equal(t, def.MaxTraversalDepth, opts.MaxTraversalDepth)
	assert.Equal(t, def.PlanCacheSize, opts.PlanCacheSize)
}

func TestLoadOptions_Errors(t *testing.T) {
	_, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_query_timeout: [nope]\n"), 0o600))
	_, err = LoadOptions(path)
	require.Error(t, err)
}

func TestOptions_Validate(t *testing.T) {
	opt := DefaultOptions()
	opt.Database = ""
	_, err := Open(opt)
	require.Error(t, err)

	opt = DefaultOptions()
	opt.MaxTraversalDepth = -1
	_, err = Open(opt)
	require.Error(t, err)
}

func TestDuration_Unmarshal(t *testing.T) {
	var d Duration
	require.NoError(t, yamlUnmarshalInto("1h30m", &d))
	assert.Equal(t, 90*time.Minute, d.std())

	// Integers are taken as nanoseconds.
	require.NoError(t, yamlUnmarshalInto("1500000000", &d))
	assert.Equal(t, 1500*time.Millisecond, d.std())

	require.Error(t, yamlUnmarshalInto("\"soon\"", &d))
}

func yamlUnmarshalInto(doc string, d *Duration) error {
	type box struct {
		D Duration `yaml:"d"`
	}
	var b box
	if err := yaml.Unmarshal([]byte("d: "+doc+"\n"), &b); err != nil {
		return err
	}
	*d = b.D
	return nil
}
