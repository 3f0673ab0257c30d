package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"vattn/internal/device/sim"
	"vattn/internal/vmm"
	"vattn/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vattn.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

// 2 layers, 64MiB ranges, room for 16 pages.
const smallConfig = `
num_layers: 2
virt_buff_size: 67108864
free_memory: 33554432
max_batch: 2
log_json: true
`

func TestRootCmd_Subcommands(t *testing.T) {
	root := buildRootCmd()
	for _, name := range []string{"serve", "simulate", "completion"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Fatalf("subcommand %q not found: %v", name, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil || root.PersistentFlags().Lookup("log-level") == nil {
		t.Fatalf("missing persistent flags")
	}
}

func TestSimulate_PrintsStatus(t *testing.T) {
	cfgPath := writeConfig(t, smallConfig)
	root := buildRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"--config", cfgPath, "--log-level", "error", "simulate", "--requests", "2", "--prompt-tokens", "100", "--steps", "4"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v (stderr=%s)", err, errOut.String())
	}
	var st types.StatusResponse
	if err := json.Unmarshal(out.Bytes(), &st); err != nil {
		t.Fatalf("json: %v (out=%q)", err, out.String())
	}
	// One page pair per layer per request.
	if st.PoolPages != 16 || st.Mappings != 4 || st.State != vmm.StateReady {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSimulate_StopsWhenPoolRunsOut(t *testing.T) {
	cfgPath := writeConfig(t, smallConfig)
	root := buildRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	// 4 pages per request per layer need 32 handles; the pool holds 16.
	root.SetArgs([]string{"--config", cfgPath, "--log-level", "error", "simulate", "--requests", "2", "--prompt-tokens", "2048", "--steps", "1"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !bytes.Contains(errOut.Bytes(), []byte("out of pages")) {
		t.Fatalf("stderr=%q", errOut.String())
	}
}

func TestSimulate_GranularityMismatchIsFatal(t *testing.T) {
	cfgPath := writeConfig(t, smallConfig+"page_size: 4194304\n")
	root := buildRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "simulate"})
	err := root.Execute()
	if !vmm.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestLoadConfig_FlagOverridesLogLevel(t *testing.T) {
	cfg, err := loadConfig(&rootOptions{configPath: writeConfig(t, smallConfig), logLevel: "debug"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.NumLayers != 2 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func startTestNode(t *testing.T) *node {
	t.Helper()
	cfg, err := loadConfig(&rootOptions{configPath: writeConfig(t, smallConfig)})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	n, err := startNode(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return n
}

func TestFinish_SkipsCleanupAfterFatalError(t *testing.T) {
	n := startTestNode(t)
	// A misaligned offset is a fatal caller bug.
	err := n.mgr.Map(vmm.MapRequest{Offset: 1, KBase: n.ranges.KBase(0), VBase: n.ranges.VBase(0), KPage: 1, VPage: 2})
	if !vmm.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if n.finish(err) {
		t.Fatalf("finish ran cleanup after a fatal error")
	}
	if n.mgr.PoolSize() != 16 || n.dev.Stats().Handles != 16 {
		t.Fatalf("pool=%d handles=%d, want state untouched", n.mgr.PoolSize(), n.dev.Stats().Handles)
	}
}

func TestFinish_CleansUpOtherwise(t *testing.T) {
	n := startTestNode(t)
	if !n.finish(nil) {
		t.Fatalf("finish skipped cleanup without a fatal error")
	}
	if st := n.dev.Stats(); st != (sim.Stats{}) {
		t.Fatalf("device not empty after cleanup: %+v", st)
	}
}
