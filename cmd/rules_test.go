package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finextract/internal/validation"
)

func TestRuleInfos(t *testing.T) {
	t.Parallel()

	engine := validation.NewDefaultEngine()
	infos := ruleInfos(engine)
	require.Len(t, infos, len(engine.Rules()))

	seen := map[string]bool{}
	for _, r := range infos {
		assert.NotEmpty(t, r.ID)
		assert.NotEmpty(t, r.Name)
		assert.False(t, seen[r.ID], "duplicate rule %s", r.ID)
		seen[r.ID] = true
	}
	assert.True(t, seen["SDE001"])
	assert.True(t, seen["COVID001"])
}

func TestRulesCommand_Output(t *testing.T) {
	var buf bytes.Buffer
	rulesCmd.SetOut(&buf)
	defer rulesCmd.SetOut(nil)

	require.NoError(t, rulesCmd.RunE(rulesCmd, nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(validation.NewDefaultEngine().Rules())+1)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, buf.String(), "SDE001")
}
