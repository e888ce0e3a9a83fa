// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package device

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
)

func TestBreakerClientPassesThroughHealthyPolls(t *testing.T) {
	inner := NewReplayClient("garage", []ReplayStep{
		{Reading: &Reading{Plugged: true}},
	})
	c := NewBreakerClient("garage", inner)

	reading, err := c.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reading.Plugged {
		t.Error("reading not passed through")
	}
}

func TestBreakerClientOpensAfterConsecutiveFailures(t *testing.T) {
	inner := NewReplayClient("garage", []ReplayStep{
		{Err: apperrors.ErrUnreachable},
	})
	c := NewBreakerClient("garage", inner)

	for i := 0; i < breakerFailureThreshold; i++ {
		if _, err := c.Status(context.Background()); err == nil {
			t.Fatalf("poll %d unexpectedly succeeded", i)
		}
	}

	// Breaker is now open: the failure must be fast and typed
	// unreachable without reaching the inner client.
	_, err := c.Status(context.Background())
	if err == nil {
		t.Fatal("open breaker allowed a poll")
	}
	if !errors.Is(err, apperrors.ErrUnreachable) {
		t.Errorf("err = %v, want unreachable cause", err)
	}
	if !apperrors.IsDeviceError(err) {
		t.Errorf("err = %v, want DeviceError", err)
	}
}

func TestReplayClientRepeatsFinalStep(t *testing.T) {
	c := NewReplayClient("garage", []ReplayStep{
		{Reading: &Reading{Plugged: false}},
		{Reading: &Reading{Plugged: true}},
	})

	first, _ := c.Status(context.Background())
	if first.Plugged {
		t.Error("first step out of order")
	}
	for i := 0; i < 3; i++ {
		r, err := c.Status(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !r.Plugged {
			t.Error("final step not repeated")
		}
	}
}
