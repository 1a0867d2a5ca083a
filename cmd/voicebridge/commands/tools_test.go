package commands

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestToolsCommand(t *testing.T) {
	cfgPath := writeConfig(t, "vendor: novasonic\n")

	stdout, stderr, code := runCmd(t, "tools", "--config", cfgPath)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "getdatetool") || !strings.Contains(stdout, "getslowtool") {
		t.Errorf("missing built-in tools: %s", stdout)
	}
	if strings.Contains(stdout, "getkbtool") || strings.Contains(stdout, "externalagent") {
		t.Errorf("unconfigured tools listed: %s", stdout)
	}
}

func TestToolsCommandConfigured(t *testing.T) {
	cfgPath := writeConfig(t, `kb:
  - title: Hours
    content: Open 9 to 5.
agent:
  api_key: sk-agent
`)

	stdout, stderr, code := runCmd(t, "tools", "--config", cfgPath)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, name := range []string{"getdatetool", "getslowtool", "getkbtool", "externalagent"} {
		if !strings.Contains(stdout, name) {
			t.Errorf("missing tool %s: %s", name, stdout)
		}
	}
}

func TestToolsCommandVerbose(t *testing.T) {
	cfgPath := writeConfig(t, "kb:\n  - title: Hours\n    content: Open 9 to 5.\n")

	stdout, stderr, code := runCmd(t, "tools", "--config", cfgPath, "-v")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"query"`) {
		t.Errorf("verbose output missing schemas: %s", stdout)
	}
}

func TestToolsCommandJSON(t *testing.T) {
	cfgPath := writeConfig(t, "vendor: novasonic\n")

	stdout, stderr, code := runCmd(t, "tools", "--config", cfgPath, "--json")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	var decls []map[string]any
	if err := json.Unmarshal([]byte(stdout), &decls); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if len(decls) != 2 {
		t.Fatalf("got %d declarations, want 2", len(decls))
	}
	if decls[0]["name"] != "getdatetool" {
		t.Errorf("first declaration = %v", decls[0])
	}
}
