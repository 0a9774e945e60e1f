package services

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(ErrExternalTool, "extract", "ffmpeg", "conversion failed", cause)
	if !errors.Is(err, ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	want := "external tool error: extract: ffmpeg: conversion failed: exit status 1"
	if err.Error() != want {
		t.Fatalf("unexpected message:\n got %q\nwant %q", err.Error(), want)
	}
	if Message(err) != "extract: ffmpeg: conversion failed: exit status 1" {
		t.Fatalf("unexpected Message: %q", Message(err))
	}
}

func TestWrapDefaultsMarkerAndDetail(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if err.Error() != "external service error: service failure" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestMarkTransient(t *testing.T) {
	base := Wrap(ErrExternalService, "translate", "chat", "rate limited", nil)
	err := MarkTransient(base)
	if !IsTransient(err) {
		t.Fatal("expected transient error")
	}
	if !errors.Is(err, ErrExternalService) {
		t.Fatal("expected original marker to survive")
	}
	if err.Error() != base.Error() {
		t.Fatalf("message changed: %q", err.Error())
	}
	if MarkTransient(nil) != nil {
		t.Fatal("expected nil passthrough")
	}
	if IsTransient(fmt.Errorf("plain")) {
		t.Fatal("plain error must not be transient")
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Wrap(ErrValidation, "validate", "", "too big", nil), "validation"},
		{Wrap(ErrExternalTool, "extract", "", "", nil), "external_tool"},
		{MarkTransient(Wrap(ErrExternalService, "transcribe", "", "", nil)), "external_service"},
		{Wrap(ErrConfiguration, "openai", "", "missing key", nil), "configuration"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
