package observability

import (
	"testing"

	"github.com/fairyhunter13/smurfguard/internal/config"
)

func TestSetupLogger_DevAndProd(t *testing.T) {
	lg := SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "smurfguard"})
	if lg == nil {
		t.Fatalf("nil logger")
	}
	lg2 := SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "smurfguard"})
	if lg2 == nil {
		t.Fatalf("nil logger prod")
	}
	lg3 := SetupLogger(config.Config{AppEnv: "test", OTELServiceName: "smurfguard"})
	if lg3 == nil {
		t.Fatalf("nil logger test")
	}
}
