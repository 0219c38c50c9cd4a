package progressbar

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := New(&buf, 10, 2)

	bar.Increment("first")
	if !strings.Contains(buf.String(), "50.00%") {
		t.Errorf("increment: expected 50%% progress, have %q", buf.String())
	}

	bar.Increment("second")
	bar.Increment("ignored")
	if strings.Contains(buf.String(), "ignored") {
		t.Errorf("increment: progress past max should not be drawn")
	}
	if !strings.Contains(buf.String(), "100.00%") {
		t.Errorf("increment: expected 100%% progress, have %q", buf.String())
	}

	bar.Close()
	bar.Close()
}
