package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/xaenox/agent-worker/internal/models"
)

func runToolsCmd(t *testing.T, args ...string) []models.ToolSpec {
	t.Helper()
	cmd := buildToolsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var specs []models.ToolSpec
	if err := json.Unmarshal(out.Bytes(), &specs); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	return specs
}

func hasTool(specs []models.ToolSpec, name string) bool {
	for _, s := range specs {
		if s.Function.Name == name {
			return true
		}
	}
	return false
}

func TestToolsCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		count   int
		pixLink bool
	}{
		{name: "defaults", args: nil, count: 11, pixLink: false},
		{name: "pix enabled", args: []string{"--features", `{"ask_for_pix":true}`}, count: 12, pixLink: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs := runToolsCmd(t, tt.args...)
			if len(specs) != tt.count {
				t.Fatalf("expected %d tools, got %d", tt.count, len(specs))
			}
			if got := hasTool(specs, "create_payment_link"); got != tt.pixLink {
				t.Errorf("create_payment_link offered = %v, want %v", got, tt.pixLink)
			}
		})
	}
}

func TestToolsCommandRejectsBadFeatures(t *testing.T) {
	cmd := buildToolsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--features", "{not json"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for malformed features")
	}
}
