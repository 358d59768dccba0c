package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/battwheels/ledgercore/internal/app"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(app.TestModeEnv, "1")
		if os.Getenv("SEQUENCE_BACKEND") == "" {
			_ = os.Setenv("SEQUENCE_BACKEND", "postgres")
		}
		app.RefreshTestMode()
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
