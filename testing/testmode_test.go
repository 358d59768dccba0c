package testing

import (
	"os"
	stdtesting "testing"

	"github.com/stretchr/testify/require"

	"github.com/battwheels/ledgercore/internal/app"
)

func TestImportEnablesTestMode(t *stdtesting.T) {
	require.Equal(t, "1", os.Getenv(app.TestModeEnv))
	require.True(t, app.InTestMode())
}
