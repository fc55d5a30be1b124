package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = format
	})
	Logf("well %s done", "well000")
	if got != "well %s done" {
		t.Errorf("custom logger not invoked, got %q", got)
	}

	// nil installs a no-op; must not panic and must not hit the old logger
	got = ""
	SetLogger(nil)
	Logf("ignored")
	if got != "" {
		t.Errorf("no-op logger still forwarded: %q", got)
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should have a default")
	}
}
