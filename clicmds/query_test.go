package clicmds

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/driverk/driverk"
)

func TestParseSelector(t *testing.T) {
	sel, err := parseSelector("css=a[href='x=y']")
	require.NoError(t, err)
	require.Equal(t, driverk.CSS("a[href='x=y']"), sel)

	sel, err = parseSelector("partial_link=help")
	require.NoError(t, err)
	require.Equal(t, driverk.PartialLinkText("help"), sel)

	_, err = parseSelector("css")
	require.Error(t, err)
}

func TestParseConditions(t *testing.T) {
	conds, err := parseConditions([]string{"displayed, enabled", "text=Log in, now", "attr=type=submit", "hidden"})
	require.NoError(t, err)

	names := make([]string, 0, len(conds))
	for _, c := range conds {
		names = append(names, c.String())
	}
	require.Equal(t, []string{"displayed", "enabled", `text="Log in, now"`, `type="submit"`, "not displayed"}, names)
}
