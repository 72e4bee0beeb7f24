package version

import (
	"strings"
	"testing"
)

func TestVersionPopulated(t *testing.T) {
	if Version == "" {
		t.Error("Version should never be empty after init")
	}
	if Commit == "" {
		t.Error("Commit should never be empty after init")
	}
	if !strings.Contains(Full(), Version) {
		t.Errorf("Full() = %q, missing version", Full())
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "sensorlink/"+Version+" (") {
		t.Errorf("UserAgent() = %q", ua)
	}
	if strings.ContainsAny(ua, "\r\n") {
		t.Errorf("UserAgent() contains line breaks: %q", ua)
	}
}
