package waf

import (
	"strings"
	"testing"
)

func TestDenialPage_DefaultShape(t *testing.T) {
	page := NewDenialPage()

	body, err := page.RenderString(DenialData{Reason: "Domain is blocked."})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if !strings.HasPrefix(body, "<h1>403 Forbidden: Access Denied by WAF</h1>") {
		t.Errorf("unexpected heading: %q", body)
	}
	if !strings.Contains(body, "<p>Domain is blocked.</p>") {
		t.Errorf("reason not rendered: %q", body)
	}
}

func TestDenialPage_EscapesReason(t *testing.T) {
	page := NewDenialPage()

	body, err := page.RenderString(DenialData{Reason: "<script>alert(1)</script>"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	// The reason carries attacker-controlled request values; raw markup
	// must never reach the page.
	if strings.Contains(body, "<script>") {
		t.Errorf("reason not escaped: %q", body)
	}
}

func TestDenialPage_CustomTemplate(t *testing.T) {
	page, err := NewDenialPageFromTemplate(`blocked: {{.Reason}}`)
	if err != nil {
		t.Fatalf("parse template: %v", err)
	}

	body, err := page.RenderString(DenialData{Reason: "because"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if body != "blocked: because" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestDenialPage_InvalidTemplate(t *testing.T) {
	if _, err := NewDenialPageFromTemplate(`{{.Broken`); err == nil {
		t.Error("expected error for invalid template")
	}
}
