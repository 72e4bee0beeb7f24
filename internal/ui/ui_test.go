package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success keeps detail order",
			result: NewSuccessResult("Ping accepted", D("Status", "200 OK"), D("Attempts", 3)),
			want:   []string{SuccessMarker, "SUCCESS", "Ping accepted", "Status:", "200 OK", "Attempts:", "3"},
		},
		{
			name:   "failure with tips",
			result: NewFailureResult("Push failed", errors.New("server refused connection"), []string{"Verify the port"}),
			want:   []string{FailureMarker, "FAILED", "server refused connection", "Troubleshooting:", "Verify the port"},
		},
		{
			name:   "warning",
			result: NewWarningResult("Protected keys skipped", D("remote", "token")),
			want:   []string{WarningMarker, "WARNING", "remote:", "token"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(80).Render()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("Render() missing %q:\n%s", w, out)
				}
			}
		})
	}

	out := NewSuccessResult("x", D("first", 1), D("second", 2)).SetWidth(80).Render()
	if strings.Index(out, "first") > strings.Index(out, "second") {
		t.Error("details rendered out of order")
	}
}

func TestHeaderRender(t *testing.T) {
	out := NewHeader("telemetry ping", "sensorlink ping", D("Node", "d3s_X")).SetWidth(70).Render()
	for _, w := range []string{"TELEMETRY PING", "sensorlink ping", "Node:", "d3s_X"} {
		if !strings.Contains(out, w) {
			t.Errorf("Render() missing %q:\n%s", w, out)
		}
	}
}

func TestHintLines(t *testing.T) {
	hint := "The server could not be reached.\nTroubleshooting:\n  • Check url_base for typos\n  • Verify DNS"
	got := HintLines(hint)
	want := []string{"The server could not be reached.", "Check url_base for typos", "Verify DNS"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("HintLines() = %q, want %q", got, want)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"REPLACE\n", true},
		{"  REPLACE  \n", true},
		{"replace\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		p := NewPrinter(&out)
		got := p.Confirm(strings.NewReader(tt.input), "Replace credential", []string{"The server keeps the old record"}, "REPLACE")
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Replace credential") {
			t.Errorf("warning box not printed for %q", tt.input)
		}
	}
}
