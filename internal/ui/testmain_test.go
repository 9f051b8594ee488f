package ui

import (
	"os"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// TestMain renders without color so assertions can match plain text, and
// points home at a scratch dir so nothing reads the real transcripts.
func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)

	home, err := os.MkdirTemp("", "recall-ui-test-")
	if err != nil {
		panic(err)
	}
	os.Setenv("RECALL_HOME_OVERRIDE", home)

	code := m.Run()
	os.RemoveAll(home)
	os.Exit(code)
}
