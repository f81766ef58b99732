package validation

import (
	"testing"

	"github.com/google/uuid"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

func TestNewURLValidator(t *testing.T) {
	validator := NewURLValidator()
	if validator == nil {
		t.Fatal("Expected non-nil URL validator")
	}

	expectedSchemes := []string{"http", "https", "file"}
	if len(validator.allowedSchemes) != len(expectedSchemes) {
		t.Errorf("Expected %d schemes, got %d", len(expectedSchemes), len(validator.allowedSchemes))
	}

	for i, scheme := range expectedSchemes {
		if validator.allowedSchemes[i] != scheme {
			t.Errorf("Expected scheme %s, got %s", scheme, validator.allowedSchemes[i])
		}
	}
}

func TestValidateSourceURL_ValidURLs(t *testing.T) {
	validator := NewURLValidator()

	validURLs := []string{
		"http://example.com/video.mp4",
		"https://m3.shore.mbari.org/videos/M3/mezzanine/Doc/2019/D1190_20190923T152401Z.mov",
		"https://account.blob.core.windows.net/frames/image.png",
		"http://192.168.1.1/image.jpg",
		"file:///data/frames/image.png",
	}

	for _, url := range validURLs {
		if err := validator.ValidateSourceURL(url); err != nil {
			t.Errorf("Expected valid URL %s to pass validation, got error: %v", url, err)
		}
	}
}

func TestValidateSourceURL_EmptyURL(t *testing.T) {
	validator := NewURLValidator()

	for _, url := range []string{"", "   ", "\t\n"} {
		err := validator.ValidateSourceURL(url)
		if err == nil {
			t.Errorf("Expected empty URL '%s' to fail validation", url)
			continue
		}

		if appErr, ok := err.(*apperrors.AppError); ok {
			if appErr.Message != "URL cannot be empty" {
				t.Errorf("Expected 'URL cannot be empty' error, got: %s", appErr.Message)
			}
		} else {
			t.Errorf("Expected AppError, got: %T", err)
		}
	}
}

func TestValidateSourceURL_Invalid(t *testing.T) {
	validator := NewURLValidator()

	tests := []struct {
		url     string
		message string
	}{
		{"not-a-url", "URL scheme not allowed"},
		{"ftp://example.com/image.jpg", "URL scheme not allowed"},
		{"http://", "URL must have a valid host"},
		{"http:///path", "URL must have a valid host"},
		{"file://", "file URL must have a path"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := validator.ValidateSourceURL(tt.url)
			if err == nil {
				t.Fatalf("Expected '%s' to fail validation", tt.url)
			}
			if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
				t.Errorf("Expected validation error, got: %v", err)
			}
			if appErr, ok := err.(*apperrors.AppError); ok && appErr.Message != tt.message {
				t.Errorf("Expected '%s', got: %s", tt.message, appErr.Message)
			}
		})
	}
}

func TestValidateSourceURL_RestrictedHosts(t *testing.T) {
	validator := NewURLValidatorWithOptions([]string{"https"}, []string{"example.com"})

	if err := validator.ValidateSourceURL("https://example.com:8443/image.jpg"); err != nil {
		t.Errorf("Expected allowed host to pass, got: %v", err)
	}
	err := validator.ValidateSourceURL("https://untrusted.com/image.png")
	if err == nil {
		t.Fatal("Expected disallowed host to fail validation")
	}
	if appErr, ok := err.(*apperrors.AppError); ok && appErr.Message != "URL host not allowed" {
		t.Errorf("Expected 'URL host not allowed' error, got: %s", appErr.Message)
	}
	if err := validator.ValidateSourceURL("http://example.com/image.jpg"); err == nil {
		t.Error("Expected http to be rejected when only https is allowed")
	}
}

func TestValidateItem(t *testing.T) {
	validator := NewURLValidator()
	valid := func() *models.Item {
		return &models.Item{ID: uuid.New(), SourceURL: "https://example.com/a.png"}
	}

	if err := validator.ValidateItem(valid()); err != nil {
		t.Errorf("Expected valid item to pass, got: %v", err)
	}

	noID := valid()
	noID.ID = uuid.Nil
	negative := valid()
	negative.ImageWidth = -1
	badURL := valid()
	badURL.SourceURL = "gopher://example.com"

	for name, item := range map[string]*models.Item{"nil": nil, "no id": noID, "negative": negative, "bad url": badURL} {
		if err := validator.ValidateItem(item); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}
