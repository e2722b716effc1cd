package evidence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShellDetector(t *testing.T) {
	t.Parallel()

	d := NewShellDetector(1000)
	require.True(t, d.IsShell(nil))
	require.True(t, d.IsShell([]byte(`<html><script>var a=1;</script><p>t</p></html>`)))
	require.False(t, d.IsShell([]byte(`<html><body><p>plain server rendered page</p></body></html>`)))

	long := `<html><script>x</script>` + strings.Repeat("<p>content</p>", 200) + `</html>`
	require.False(t, d.IsShell([]byte(long)))

	unterminated := `<html><p>hi</p><script>never closes`
	require.True(t, d.IsShell([]byte(unterminated)))
}
