package notification

import (
	"testing"
	"time"

	"github.com/dooshek/gamecoach/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestFormatAdvice(t *testing.T) {
	msg := formatAdvice(types.Advice{Advice: " Dodge left ", Provider: "openai", Confidence: 0.85, AnalysisTimeMs: 1200}, true, 5*time.Second)

	assert.Equal(t, "Game Coach - urgent", msg.title)
	assert.Equal(t, "Dodge left\nopenai · 85% · 1200ms", msg.body)
	assert.True(t, msg.replace)
	assert.Equal(t, []string{"-a", "Game Coach", "-u", "critical", "-t", "5000", "-h", syncHint, msg.title, msg.body}, notifySendArgs(msg))
}

func TestFormatDegradedAdvice(t *testing.T) {
	msg := formatAdvice(types.Advice{Advice: "Analysis failed: timeout", Provider: types.ProviderNameError, Confidence: 0.1}, false, 0)

	assert.Equal(t, "Game Coach (analysis failed)", msg.title)
	assert.Equal(t, "Analysis failed: timeout", msg.body)
	assert.Equal(t, []string{"-a", "Game Coach", "-h", syncHint, msg.title, msg.body}, notifySendArgs(msg))
}

func TestDarwinQuote(t *testing.T) {
	assert.Equal(t, `say \"hi\" \\o/`, quote(`say "hi" \o/`))
}
