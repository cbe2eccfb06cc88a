package main

import (
	"context"
	"testing"
	"time"

	"github.com/AxleData/axle/pkg/mid"
	"github.com/AxleData/axle/pkg/resilience"
)

func TestParseAPIKeys(t *testing.T) {
	if v := parseAPIKeys("", 60); v != nil {
		t.Fatal("empty config should disable auth")
	}
	if v := parseAPIKeys("garbage", 60); v != nil {
		t.Fatal("config without key=org pairs should disable auth")
	}

	v := parseAPIKeys("k1=org-a, k2=org-b", 60)
	if v == nil {
		t.Fatal("expected a verifier")
	}
	id, err := v.Verify(context.Background(), "k2")
	if err != nil {
		t.Fatal(err)
	}
	if id.OrgID != "org-b" || id.RateLimit != 60 {
		t.Fatalf("identity = %+v", id)
	}
	if _, err := v.Verify(context.Background(), "k3"); err == nil {
		t.Fatal("unknown key should be rejected")
	}
}

func TestOrgDecider(t *testing.T) {
	d := &orgDecider{lim: resilience.NewOrgLimiter(), defaultPerMin: 2}

	id := mid.Identity{OrgID: "org-a"}
	for i := 0; i < 2; i++ {
		if dec := d.Allow(context.Background(), id); !dec.Allowed {
			t.Fatalf("call %d should be allowed", i)
		}
	}
	dec := d.Allow(context.Background(), id)
	if dec.Allowed {
		t.Fatal("third call should be limited")
	}
	if dec.Code != "rate_limited" {
		t.Fatalf("code = %q", dec.Code)
	}

	// Identity quota overrides the default.
	wide := mid.Identity{OrgID: "org-b", RateLimit: 100}
	for i := 0; i < 10; i++ {
		if dec := d.Allow(context.Background(), wide); !dec.Allowed {
			t.Fatalf("org-b call %d should be allowed", i)
		}
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("DECODE_TIMEOUT", "250ms")
	if d := envDuration("DECODE_TIMEOUT", time.Second); d != 250*time.Millisecond {
		t.Fatalf("d = %v", d)
	}
	if d := envDuration("DECODE_TIMEOUT_UNSET", time.Second); d != time.Second {
		t.Fatalf("fallback = %v", d)
	}
}
