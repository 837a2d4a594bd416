package service

import (
	"errors"
	"testing"

	"github.com/yndnr/respkv/internal/core/domain"
)

func TestRateLimiterRegistry(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r := NewRateLimiterRegistry(0)
		for i := 0; i < 100; i++ {
			if err := r.Check("1.2.3.4"); err != nil {
				t.Fatalf("Check = %v", err)
			}
		}
		if r.Len() != 0 {
			t.Errorf("Len = %d", r.Len())
		}
	})

	t.Run("burst then limited", func(t *testing.T) {
		r := NewRateLimiterRegistry(3)
		for i := 0; i < 3; i++ {
			if err := r.Check("c"); err != nil {
				t.Fatalf("call %d: %v", i, err)
			}
		}
		err := r.Check("c")
		if !errors.Is(err, domain.ErrRateLimited) {
			t.Fatalf("err = %v, want ErrRateLimited", err)
		}
		if err := r.Check("other"); err != nil {
			t.Errorf("other client limited: %v", err)
		}
	})

	t.Run("same limiter", func(t *testing.T) {
		r := NewRateLimiterRegistry(5)
		if r.GetOrCreate("x") != r.GetOrCreate("x") {
			t.Error("GetOrCreate should return the same limiter")
		}
		r.Delete("x")
		if r.Len() != 0 {
			t.Errorf("Len = %d", r.Len())
		}
	})
}
